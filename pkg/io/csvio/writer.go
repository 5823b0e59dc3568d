package csvio

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/wdm0006/labeletl/pkg/etl"
	iox "github.com/wdm0006/labeletl/pkg/io/ioutils"
)

type WriterOptions struct {
	Delimiter rune // default ','
}

// Writer is a row-encoded Sink. Nothing is visible at the target path until Close.
type Writer struct {
	file   *iox.AtomicFile
	out    io.WriteCloser
	w      *csv.Writer
	width  int
	header bool
	rows   int
}

var _ etl.Sink = (*Writer)(nil)

// Create prepares a CSV sink at path, creating parent directories. A .gz path
// is gzip compressed.
func Create(path string, opt WriterOptions) (*Writer, error) {
	af, err := iox.CreateAtomic(path)
	if err != nil {
		return nil, etl.Resource("create output", path, err)
	}
	out := iox.WrapMaybeCompressed(path, af)
	w := csv.NewWriter(out)
	if opt.Delimiter != 0 {
		w.Comma = opt.Delimiter
	}
	return &Writer{file: af, out: out, w: w}, nil
}

func (s *Writer) WriteHeader(h etl.Header) error {
	if s.header {
		return errors.New("csv header already written")
	}
	s.header = true
	s.width = len(h)
	if err := s.w.Write(h); err != nil {
		return etl.Resource("write header", s.file.Target(), err)
	}
	return nil
}

// Write pads or truncates rec to the header width.
func (s *Writer) Write(rec etl.Record) error {
	if !s.header {
		return errors.New("csv record written before header")
	}
	row := []string(rec)
	if len(row) != s.width {
		row = rec.Pad(s.width)
	}
	if err := s.w.Write(row); err != nil {
		return etl.Resource("write record", s.file.Target(), err)
	}
	s.rows++
	return nil
}

// Rows is the number of records written.
func (s *Writer) Rows() int { return s.rows }

func (s *Writer) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.file.Discard()
		return etl.Resource("flush output", s.file.Target(), err)
	}
	if err := s.out.Close(); err != nil {
		_ = s.file.Discard()
		return etl.Resource("flush output", s.file.Target(), err)
	}
	if err := s.file.Commit(); err != nil {
		return etl.Resource("commit output", s.file.Target(), err)
	}
	return nil
}

func (s *Writer) Abort() error { return s.file.Discard() }

// WriteAll writes a header and records to path in one call.
func WriteAll(path string, h etl.Header, rows []etl.Record, opt WriterOptions) error {
	w, err := Create(path, opt)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(h); err != nil {
		_ = w.Abort()
		return err
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			_ = w.Abort()
			return err
		}
	}
	return w.Close()
}
