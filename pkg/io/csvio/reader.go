package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wdm0006/labeletl/pkg/etl"
	iox "github.com/wdm0006/labeletl/pkg/io/ioutils"
)

type ReaderOptions struct {
	Delimiter rune // default ','
	Sniff     bool // pick the delimiter from the header line
	LazyQuote bool
}

// Reader streams records from a delimited text file. The first row is the header.
type Reader struct {
	path   string
	rc     io.ReadCloser
	r      *csv.Reader
	header etl.Header
	line   int
}

var _ etl.Source = (*Reader)(nil)

// Open opens a CSV file (optionally gzip compressed) and reads its header.
func Open(path string, opt ReaderOptions) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, etl.NotFound("open input", path, fmt.Errorf("input file %s does not exist", path))
		}
		return nil, etl.Resource("open input", path, err)
	}
	rc, err := iox.OpenMaybeCompressed(path)
	if err != nil {
		return nil, etl.Resource("open input", path, err)
	}
	br := bufio.NewReader(rc)
	rd := newReader(br, opt)
	r := &Reader{path: path, rc: rc, r: rd}
	if err := r.readHeader(); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return r, nil
}

// NewReaderFrom reads from an arbitrary stream such as stdin or an HTTP body.
func NewReaderFrom(src io.Reader, opt ReaderOptions) (*Reader, error) {
	rd := newReader(bufio.NewReader(src), opt)
	r := &Reader{path: "-", rc: io.NopCloser(src), r: rd}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func newReader(br *bufio.Reader, opt ReaderOptions) *csv.Reader {
	rd := csv.NewReader(br)
	switch {
	case opt.Sniff:
		rd.Comma = sniffDelimiter(br)
	case opt.Delimiter != 0:
		rd.Comma = opt.Delimiter
	}
	rd.FieldsPerRecord = -1
	rd.LazyQuotes = opt.LazyQuote
	return rd
}

func (r *Reader) readHeader() error {
	rec, err := r.r.Read()
	if errors.Is(err, io.EOF) {
		return &etl.Error{Kind: etl.ErrSchema, Op: "read header", Path: r.path, Err: errors.New("input has no header row")}
	}
	if err != nil {
		return etl.Resource("read header", r.path, err)
	}
	h := make(etl.Header, len(rec))
	for i := range rec {
		h[i] = strings.ToValidUTF8(rec[i], "?")
	}
	if len(h) > 0 {
		h[0] = strings.TrimPrefix(h[0], "\ufeff")
	}
	if err := etl.ValidateHeader(h); err != nil {
		return err
	}
	r.header = h
	r.line = 1
	return nil
}

func (r *Reader) Header() etl.Header { return r.header }

// Next returns the next record or io.EOF.
func (r *Reader) Next() (etl.Record, error) {
	rec, err := r.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, etl.Resource("read record", r.path, err)
	}
	r.line++
	return etl.Record(rec), nil
}

// Line is the number of rows consumed, header included.
func (r *Reader) Line() int { return r.line }

func (r *Reader) Close() error { return r.rc.Close() }

// sniffDelimiter picks the most frequent candidate on the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	sample, _ := br.Peek(4096)
	if i := strings.IndexByte(string(sample), '\n'); i >= 0 {
		sample = sample[:i]
	}
	best, bestCount := ',', 0
	for _, c := range []rune{',', '\t', ';', '|'} {
		if n := strings.Count(string(sample), string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}
