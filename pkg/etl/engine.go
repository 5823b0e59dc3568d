package etl

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// DefaultSampleLimit bounds the preview kept for each run.
const DefaultSampleLimit = 5

// Stats counts what the engine saw. Accepted + Rejected == Initial.
type Stats struct {
	Initial  int `json:"initial_count"`
	Accepted int `json:"transformed_count"`
	Rejected int `json:"filtered_count"`
}

// Rule decides whether a record is kept.
type Rule interface {
	Name() string
	Bind(Header) error
	Accept(Record) bool
}

// RequireField keeps records whose Field value is non-empty after trimming.
type RequireField struct {
	Field string
	idx   int
}

func (r *RequireField) Name() string { return "require_" + r.Field }

func (r *RequireField) Bind(h Header) error {
	idx, err := CheckSchema(h, r.Field)
	if err != nil {
		return err
	}
	r.idx = idx
	return nil
}

func (r *RequireField) Accept(rec Record) bool {
	return strings.TrimSpace(rec.Value(r.idx)) != ""
}

// SampleRow is one previewed record, keyed by header field and encoded in header order.
type SampleRow struct {
	Fields []string
	Values []string
}

// Get returns the value for field and whether the field exists.
func (s SampleRow) Get(field string) (string, bool) {
	for i, f := range s.Fields {
		if f == field {
			return s.Values[i], true
		}
	}
	return "", false
}

// Map flattens the row. Field order is lost.
func (s SampleRow) Map() map[string]string {
	m := make(map[string]string, len(s.Fields))
	for i, f := range s.Fields {
		m[f] = s.Values[i]
	}
	return m
}

func (s SampleRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Engine filters a Source into a Sink while counting and sampling.
type Engine struct {
	KeyField    string
	SampleLimit int
	// Rule overrides the key-field rule when set.
	Rule Rule
}

// Run drains src into sink. The header is checked before the sink sees anything;
// on a schema error nothing is written. Source and sink errors are returned as is.
// Run does not close either end.
func (e Engine) Run(src Source, sink Sink) (Stats, []SampleRow, error) {
	var stats Stats
	header := src.Header()

	rule := e.Rule
	if rule == nil {
		key := e.KeyField
		if key == "" {
			key = DefaultKeyField
		}
		rule = &RequireField{Field: key}
	}
	if err := rule.Bind(header); err != nil {
		return stats, nil, err
	}
	limit := e.SampleLimit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}

	fields := header.Clone()
	if err := sink.WriteHeader(fields); err != nil {
		return stats, nil, err
	}
	sample := make([]SampleRow, 0, limit)
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, sample, err
		}
		stats.Initial++
		if !rule.Accept(rec) {
			stats.Rejected++
			continue
		}
		if err := sink.Write(rec); err != nil {
			return stats, sample, err
		}
		stats.Accepted++
		if len(sample) < limit {
			sample = append(sample, SampleRow{Fields: fields, Values: rec.Pad(len(fields))})
		}
	}
	return stats, sample, nil
}
