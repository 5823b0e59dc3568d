package etl

import (
	"errors"
	"strings"
)

// Error classes. Match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrSchema     = errors.New("schema error")
	ErrValidation = errors.New("validation failed")
	ErrResource   = errors.New("resource error")
)

// Error carries the class of a failure together with where it happened.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Path != "" {
		b.WriteString(" (")
		b.WriteString(e.Path)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NotFound reports a missing input.
func NotFound(op, path string, err error) error {
	return &Error{Kind: ErrNotFound, Op: op, Path: path, Err: err}
}

// Resource wraps an I/O failure. Errors that already carry a class pass through.
func Resource(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrResource, Op: op, Path: path, Err: err}
}

// Validation reports an output that failed its quality checks.
func Validation(path string, err error) error {
	return &Error{Kind: ErrValidation, Op: "validate", Path: path, Err: err}
}

// KindOf returns the class sentinel of err, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrSchema, ErrValidation, ErrResource} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
