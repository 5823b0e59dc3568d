package etl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind enumerates the logical column types a columnar encoding may impose.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// ParseKind maps a type name used in suites and configs to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "int64", "integer":
		return KindInt, nil
	case "float", "float64", "double", "number":
		return KindFloat, nil
	case "str", "string", "text":
		return KindString, nil
	}
	return KindInvalid, fmt.Errorf("unknown type %q", s)
}

var numre = regexp.MustCompile(`^[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?$`)

// ClassifyValue reports the narrowest kind that can hold v. Empty values are KindInvalid.
func ClassifyValue(v string) Kind {
	v = strings.TrimSpace(v)
	if v == "" {
		return KindInvalid
	}
	if numre.MatchString(v) {
		if !strings.ContainsAny(v, ".eE") {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				return KindInt
			}
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return KindFloat
		}
		return KindString
	}
	switch strings.ToLower(v) {
	case "true", "false":
		return KindBool
	}
	return KindString
}

// KindTally widens a column kind as values are observed.
type KindTally struct {
	kind Kind
}

// Observe folds one value into the tally.
func (t *KindTally) Observe(v string) {
	k := ClassifyValue(v)
	switch {
	case k == KindInvalid:
	case t.kind == KindInvalid:
		t.kind = k
	case t.kind == k:
	case (t.kind == KindInt && k == KindFloat) || (t.kind == KindFloat && k == KindInt):
		t.kind = KindFloat
	default:
		t.kind = KindString
	}
}

// Kind returns the inferred kind; columns with no values are strings.
func (t *KindTally) Kind() Kind {
	if t.kind == KindInvalid {
		return KindString
	}
	return t.kind
}

// Column is a typed, nullable column.
type Column interface {
	Name() string
	Kind() Kind
	Len() int
	IsNull(i int) bool
	// Text formats the value back to its text form; nulls are "".
	Text(i int) string
}

type BoolColumn struct {
	name  string
	data  []bool
	nulls []bool
}

func (c *BoolColumn) Name() string           { return c.name }
func (c *BoolColumn) Kind() Kind             { return KindBool }
func (c *BoolColumn) Len() int               { return len(c.data) }
func (c *BoolColumn) IsNull(i int) bool      { return c.nulls[i] }
func (c *BoolColumn) Get(i int) (bool, bool) { return c.data[i], !c.nulls[i] }
func (c *BoolColumn) Text(i int) string {
	if c.nulls[i] {
		return ""
	}
	return strconv.FormatBool(c.data[i])
}

type IntColumn struct {
	name  string
	data  []int64
	nulls []bool
}

func (c *IntColumn) Name() string            { return c.name }
func (c *IntColumn) Kind() Kind              { return KindInt }
func (c *IntColumn) Len() int                { return len(c.data) }
func (c *IntColumn) IsNull(i int) bool       { return c.nulls[i] }
func (c *IntColumn) Get(i int) (int64, bool) { return c.data[i], !c.nulls[i] }
func (c *IntColumn) Text(i int) string {
	if c.nulls[i] {
		return ""
	}
	return strconv.FormatInt(c.data[i], 10)
}

type FloatColumn struct {
	name  string
	data  []float64
	nulls []bool
}

func (c *FloatColumn) Name() string              { return c.name }
func (c *FloatColumn) Kind() Kind                { return KindFloat }
func (c *FloatColumn) Len() int                  { return len(c.data) }
func (c *FloatColumn) IsNull(i int) bool         { return c.nulls[i] }
func (c *FloatColumn) Get(i int) (float64, bool) { return c.data[i], !c.nulls[i] }
func (c *FloatColumn) Text(i int) string {
	if c.nulls[i] {
		return ""
	}
	return FormatFloat(c.data[i])
}

type StringColumn struct {
	name  string
	data  []string
	nulls []bool
}

func (c *StringColumn) Name() string             { return c.name }
func (c *StringColumn) Kind() Kind               { return KindString }
func (c *StringColumn) Len() int                 { return len(c.data) }
func (c *StringColumn) IsNull(i int) bool        { return c.nulls[i] }
func (c *StringColumn) Get(i int) (string, bool) { return c.data[i], !c.nulls[i] }
func (c *StringColumn) Text(i int) string        { return c.data[i] }

// FormatFloat is the text form typed encodings use for doubles.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Frame is a columnar buffer of typed values aligned with a Header.
type Frame struct {
	header Header
	cols   []Column
	nrows  int
}

// NewFrame builds an empty frame; kinds must match the header length.
func NewFrame(h Header, kinds []Kind) (*Frame, error) {
	if len(kinds) != len(h) {
		return nil, fmt.Errorf("frame: %d kinds for %d columns", len(kinds), len(h))
	}
	f := &Frame{header: h.Clone(), cols: make([]Column, len(h))}
	for i, name := range h {
		switch kinds[i] {
		case KindBool:
			f.cols[i] = &BoolColumn{name: name}
		case KindInt:
			f.cols[i] = &IntColumn{name: name}
		case KindFloat:
			f.cols[i] = &FloatColumn{name: name}
		case KindString:
			f.cols[i] = &StringColumn{name: name}
		default:
			return nil, fmt.Errorf("frame: column %s has invalid kind", name)
		}
	}
	return f, nil
}

func (f *Frame) Header() Header      { return f.header }
func (f *Frame) Rows() int           { return f.nrows }
func (f *Frame) Cols() int           { return len(f.cols) }
func (f *Frame) Column(i int) Column { return f.cols[i] }

// AppendRecord parses rec into the typed columns. Blank values become nulls in
// non-string columns and "" in string columns.
func (f *Frame) AppendRecord(rec Record) error {
	for i, c := range f.cols {
		raw := rec.Value(i)
		val := strings.TrimSpace(raw)
		switch col := c.(type) {
		case *BoolColumn:
			if val == "" {
				col.data, col.nulls = append(col.data, false), append(col.nulls, true)
				continue
			}
			b, err := strconv.ParseBool(strings.ToLower(val))
			if err != nil {
				return fmt.Errorf("column %s expects bool, got %q", col.name, raw)
			}
			col.data, col.nulls = append(col.data, b), append(col.nulls, false)
		case *IntColumn:
			if val == "" {
				col.data, col.nulls = append(col.data, 0), append(col.nulls, true)
				continue
			}
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("column %s expects int, got %q", col.name, raw)
			}
			col.data, col.nulls = append(col.data, n), append(col.nulls, false)
		case *FloatColumn:
			if val == "" {
				col.data, col.nulls = append(col.data, 0), append(col.nulls, true)
				continue
			}
			x, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("column %s expects float, got %q", col.name, raw)
			}
			col.data, col.nulls = append(col.data, x), append(col.nulls, false)
		case *StringColumn:
			col.data, col.nulls = append(col.data, raw), append(col.nulls, raw == "")
		}
	}
	f.nrows++
	return nil
}

// Kinds returns the column kinds in header order.
func (f *Frame) Kinds() []Kind {
	out := make([]Kind, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.Kind()
	}
	return out
}
