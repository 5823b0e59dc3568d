package parquetio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	parquet "github.com/segmentio/parquet-go"

	"github.com/wdm0006/labeletl/pkg/etl"
)

// Reader is a Source over a parquet file written by either sink. Nulls read
// as "" and typed values are formatted back to text.
type Reader struct {
	path   string
	file   *os.File
	pf     *parquet.File
	header etl.Header
	kinds  []etl.Kind
	// pos maps a leaf column index to its header position.
	pos []int

	groups []parquet.RowGroup
	group  int
	rows   parquet.Rows
	buf    []parquet.Row
	n, i   int
	eof    bool
}

var _ etl.Source = (*Reader)(nil)

// Open opens path and restores the header order.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, etl.NotFound("open parquet", path, err)
		}
		return nil, etl.Resource("open parquet", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, etl.Resource("open parquet", path, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, etl.Resource("open parquet", path, err)
	}
	r := &Reader{path: path, file: f, pf: pf, groups: pf.RowGroups(), buf: make([]parquet.Row, 256)}
	if err := r.layout(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) layout() error {
	fields := r.pf.Schema().Fields()
	names := make([]string, len(fields))
	kinds := make([]etl.Kind, len(fields))
	for i, fd := range fields {
		if !fd.Leaf() {
			return &etl.Error{Kind: etl.ErrSchema, Op: "parquet schema", Path: r.path, Err: fmt.Errorf("nested column %q", fd.Name())}
		}
		names[i] = fd.Name()
		kinds[i] = kindOf(fd.Type().Kind())
	}

	order := etl.Header(names)
	if raw, ok := r.pf.Lookup(HeaderMetadataKey); ok {
		var h etl.Header
		if err := json.Unmarshal([]byte(raw), &h); err == nil && sameNames(h, names) {
			order = h
		}
	}
	r.header = order.Clone()
	r.pos = make([]int, len(names))
	r.kinds = make([]etl.Kind, len(names))
	for leafIdx, n := range names {
		p := r.header.Index(n)
		r.pos[leafIdx] = p
		r.kinds[p] = kinds[leafIdx]
	}
	return etl.ValidateHeader(r.header)
}

func sameNames(h etl.Header, names []string) bool {
	if len(h) != len(names) {
		return false
	}
	for _, n := range names {
		if h.Index(n) < 0 {
			return false
		}
	}
	return true
}

func kindOf(k parquet.Kind) etl.Kind {
	switch k {
	case parquet.Boolean:
		return etl.KindBool
	case parquet.Int32, parquet.Int64:
		return etl.KindInt
	case parquet.Float, parquet.Double:
		return etl.KindFloat
	default:
		return etl.KindString
	}
}

func (r *Reader) Header() etl.Header { return r.header }

// Kinds reports the physical column kinds in header order.
func (r *Reader) Kinds() []etl.Kind { return r.kinds }

// NumRows is the row count declared by the file footer.
func (r *Reader) NumRows() int64 { return r.pf.NumRows() }

func (r *Reader) Next() (etl.Record, error) {
	for r.i >= r.n {
		if r.eof {
			return nil, io.EOF
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
	row := r.buf[r.i]
	r.i++
	rec := make(etl.Record, len(r.header))
	for _, v := range row {
		c := v.Column()
		if c < 0 || c >= len(r.pos) || v.IsNull() {
			continue
		}
		rec[r.pos[c]] = valueText(v)
	}
	return rec, nil
}

func (r *Reader) fill() error {
	r.i, r.n = 0, 0
	for r.rows == nil {
		if r.group >= len(r.groups) {
			r.eof = true
			return nil
		}
		r.rows = r.groups[r.group].Rows()
		r.group++
	}
	n, err := r.rows.ReadRows(r.buf)
	r.n = n
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		_ = r.rows.Close()
		r.rows = nil
		return nil
	}
	if err != nil {
		return etl.Resource("read parquet", r.path, err)
	}
	return nil
}

func valueText(v parquet.Value) string {
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.Double:
		return etl.FormatFloat(v.Double())
	default:
		return string(v.ByteArray())
	}
}

func (r *Reader) Close() error {
	if r.rows != nil {
		_ = r.rows.Close()
	}
	return r.file.Close()
}
