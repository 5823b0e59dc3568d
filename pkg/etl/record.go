// Package etl holds the record model and the filter-and-report engine shared by
// every input and output encoding.
package etl

import (
	"fmt"
	"strings"
)

// DefaultKeyField is the identifier column every label table must carry.
const DefaultKeyField = "ImageID"

// Header is the ordered list of field names for one run.
type Header []string

// Index returns the position of name, or -1.
func (h Header) Index(name string) int {
	for i, n := range h {
		if n == name {
			return i
		}
	}
	return -1
}

// Clone returns a copy that does not alias h.
func (h Header) Clone() Header {
	out := make(Header, len(h))
	copy(out, h)
	return out
}

// Record is one row of values positioned against the Header. It may be shorter
// than the header; missing trailing positions read as "".
type Record []string

// Value returns the value at position i, or "" when the record is too short.
func (r Record) Value(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Pad returns a copy of r with exactly n positions.
func (r Record) Pad(n int) Record {
	out := make(Record, n)
	copy(out, r)
	return out
}

// Source yields a header and then records until io.EOF.
type Source interface {
	Header() Header
	Next() (Record, error)
	Close() error
}

// Sink persists a header followed by records. Close makes the output visible;
// Abort discards anything written so far.
type Sink interface {
	WriteHeader(Header) error
	Write(Record) error
	Close() error
	Abort() error
}

// ValidateHeader rejects empty or duplicate field names.
func ValidateHeader(h Header) error {
	if len(h) == 0 {
		return &Error{Kind: ErrSchema, Op: "header", Err: fmt.Errorf("no columns")}
	}
	seen := make(map[string]int, len(h))
	for i, name := range h {
		if strings.TrimSpace(name) == "" {
			return &Error{Kind: ErrSchema, Op: "header", Err: fmt.Errorf("column %d has an empty name", i)}
		}
		if j, ok := seen[name]; ok {
			return &Error{Kind: ErrSchema, Op: "header", Err: fmt.Errorf("column %q appears at %d and %d", name, j, i)}
		}
		seen[name] = i
	}
	return nil
}

// CheckSchema returns the position of key in h or a schema error.
func CheckSchema(h Header, key string) (int, error) {
	idx := h.Index(key)
	if idx < 0 {
		return -1, &Error{Kind: ErrSchema, Op: "schema", Err: fmt.Errorf("input does not contain a %q column", key)}
	}
	return idx, nil
}
