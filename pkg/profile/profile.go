// Package profile summarises the columns of a written output.
package profile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wdm0006/labeletl/pkg/etl"
)

type NumStats struct {
	Count      int     `json:"count"`
	NonNumeric int     `json:"non_numeric"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Sum        float64 `json:"sum"`
}

type BoolStats struct {
	True  int `json:"true"`
	False int `json:"false"`
}

type ColumnProfile struct {
	Name string
	// Kind is the stored kind; text encodings store everything as strings.
	Kind     etl.Kind
	Count    int
	Nulls    int
	Num      NumStats
	Bool     BoolStats
	Freqs    map[string]int
	inferred etl.KindTally
}

// Inferred is the narrowest kind that holds every non-null value.
func (cp *ColumnProfile) Inferred() etl.Kind { return cp.inferred.Kind() }

type Collector struct {
	header  etl.Header
	cols    []ColumnProfile
	index   map[string]int
	topK    int
	tracked map[string]bool
	rows    int
}

// NewCollector profiles records laid out as h. kinds may be nil for text
// sources. topK > 0 keeps value frequencies for every column.
func NewCollector(h etl.Header, kinds []etl.Kind, topK int) *Collector {
	c := &Collector{header: h.Clone(), index: make(map[string]int, len(h)), topK: topK, tracked: map[string]bool{}}
	c.cols = make([]ColumnProfile, len(h))
	for i, name := range h {
		k := etl.KindString
		if i < len(kinds) && kinds[i] != etl.KindInvalid {
			k = kinds[i]
		}
		c.cols[i] = ColumnProfile{Name: name, Kind: k, Num: NumStats{Min: math.Inf(1), Max: math.Inf(-1)}}
		if topK > 0 {
			c.cols[i].Freqs = make(map[string]int)
		}
		c.index[name] = i
	}
	return c
}

// Track keeps full value frequencies for name even when topK is 0.
func (c *Collector) Track(name string) {
	if i, ok := c.index[name]; ok && c.cols[i].Freqs == nil {
		c.cols[i].Freqs = make(map[string]int)
	}
	c.tracked[name] = true
}

// Consume folds one record into the profile.
func (c *Collector) Consume(rec etl.Record) {
	c.rows++
	for i := range c.cols {
		cp := &c.cols[i]
		v := rec.Value(i)
		if v == "" {
			cp.Nulls++
			continue
		}
		cp.Count++
		cp.inferred.Observe(v)
		if x, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(x) {
			cp.Num.Count++
			cp.Num.Sum += x
			if x < cp.Num.Min {
				cp.Num.Min = x
			}
			if x > cp.Num.Max {
				cp.Num.Max = x
			}
		} else {
			cp.Num.NonNumeric++
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			cp.Bool.True++
		case "false":
			cp.Bool.False++
		}
		if cp.Freqs != nil {
			cp.Freqs[v]++
		}
	}
}

// ConsumeSource drains src.
func (c *Collector) ConsumeSource(src etl.Source) error {
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Consume(rec)
	}
}

func (c *Collector) Header() etl.Header { return c.header }
func (c *Collector) Rows() int          { return c.rows }

func (c *Collector) Column(name string) (*ColumnProfile, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return &c.cols[i], true
}

type kv struct {
	k string
	v int
}

func top(freqs map[string]int, n int) []kv {
	arr := make([]kv, 0, len(freqs))
	for k, v := range freqs {
		arr = append(arr, kv{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].v != arr[j].v {
			return arr[i].v > arr[j].v
		}
		return arr[i].k < arr[j].k
	})
	if n > 0 && n < len(arr) {
		arr = arr[:n]
	}
	return arr
}

func (c *Collector) ReportText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Profile Summary (%d rows)\n", c.rows)
	for i := range c.cols {
		cp := &c.cols[i]
		fmt.Fprintf(&b, "- %s (%v, inferred %v): count=%d nulls=%d", cp.Name, cp.Kind, cp.Inferred(), cp.Count, cp.Nulls)
		if cp.Num.Count > 0 {
			fmt.Fprintf(&b, " min=%.6g max=%.6g mean=%.6g", cp.Num.Min, cp.Num.Max, cp.Num.Sum/float64(cp.Num.Count))
		}
		b.WriteString("\n")
		if c.topK > 0 {
			for _, e := range top(cp.Freqs, c.topK) {
				fmt.Fprintf(&b, "  * %q: %d\n", e.k, e.v)
			}
		}
	}
	return b.String()
}

type JSONProfile struct {
	Rows    int          `json:"rows"`
	Columns []JSONColumn `json:"columns"`
}

type JSONColumn struct {
	Name     string         `json:"name"`
	Kind     string         `json:"kind"`
	Inferred string         `json:"inferred"`
	Count    int            `json:"count"`
	Nulls    int            `json:"nulls"`
	Num      *NumStats      `json:"num,omitempty"`
	Top      map[string]int `json:"top,omitempty"`
}

func (c *Collector) ReportJSON() JSONProfile {
	out := JSONProfile{Rows: c.rows, Columns: make([]JSONColumn, 0, len(c.cols))}
	for i := range c.cols {
		cp := &c.cols[i]
		jc := JSONColumn{Name: cp.Name, Kind: cp.Kind.String(), Inferred: cp.Inferred().String(), Count: cp.Count, Nulls: cp.Nulls}
		if cp.Num.Count > 0 {
			num := cp.Num
			jc.Num = &num
		}
		if c.topK > 0 && len(cp.Freqs) > 0 {
			jc.Top = make(map[string]int)
			for _, e := range top(cp.Freqs, c.topK) {
				jc.Top[e.k] = e.v
			}
		}
		out.Columns = append(out.Columns, jc)
	}
	return out
}
