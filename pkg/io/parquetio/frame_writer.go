package parquetio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	parquet "github.com/segmentio/parquet-go"

	"github.com/wdm0006/labeletl/pkg/etl"
	iox "github.com/wdm0006/labeletl/pkg/io/ioutils"
)

// HeaderMetadataKey stores the header column order; parquet groups sort
// their fields by name.
const HeaderMetadataKey = "labeletl.header"

// FrameWriter buffers every record, infers a kind per column and writes typed
// columns on Close. Readers see numbers and booleans where every value parses.
type FrameWriter struct {
	target  string
	header  etl.Header
	rows    []etl.Record
	tallies []etl.KindTally
	done    bool
}

var _ etl.Sink = (*FrameWriter)(nil)

// CreateTyped returns a typed columnar sink for path. Missing parent
// directories are created up front; the file itself is written on Close.
func CreateTyped(path string) (*FrameWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, etl.Resource("create output", path, err)
	}
	return &FrameWriter{target: path}, nil
}

func (w *FrameWriter) WriteHeader(h etl.Header) error {
	if w.header != nil {
		return errors.New("parquet header already written")
	}
	w.header = h.Clone()
	w.tallies = make([]etl.KindTally, len(h))
	return nil
}

func (w *FrameWriter) Write(rec etl.Record) error {
	if w.header == nil {
		return errors.New("parquet record written before header")
	}
	row := rec.Pad(len(w.header))
	for i, v := range row {
		w.tallies[i].Observe(v)
	}
	w.rows = append(w.rows, row)
	return nil
}

// Frame materialises the buffered records with their inferred kinds.
func (w *FrameWriter) Frame() (*etl.Frame, error) {
	kinds := make([]etl.Kind, len(w.header))
	for i := range w.tallies {
		kinds[i] = w.tallies[i].Kind()
	}
	f, err := etl.NewFrame(w.header, kinds)
	if err != nil {
		return nil, err
	}
	for _, r := range w.rows {
		if err := f.AppendRecord(r); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (w *FrameWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if w.header == nil {
		return errors.New("parquet output closed before header")
	}
	f, err := w.Frame()
	if err != nil {
		return etl.Resource("parquet build frame", w.target, err)
	}
	w.rows = nil
	if err := WriteFrame(w.target, f); err != nil {
		return etl.Resource("parquet write", w.target, err)
	}
	return nil
}

func (w *FrameWriter) Abort() error {
	w.done = true
	w.rows = nil
	return nil
}

func frameSchema(f *etl.Frame) (*parquet.Schema, map[string]int) {
	group := parquet.Group{}
	names := make([]string, 0, f.Cols())
	for i := 0; i < f.Cols(); i++ {
		col := f.Column(i)
		var node parquet.Node
		switch col.Kind() {
		case etl.KindBool:
			node = parquet.Leaf(parquet.BooleanType)
		case etl.KindInt:
			node = parquet.Int(64)
		case etl.KindFloat:
			node = parquet.Leaf(parquet.DoubleType)
		default:
			node = parquet.String()
		}
		group[col.Name()] = parquet.Optional(node)
		names = append(names, col.Name())
	}
	sort.Strings(names)
	leaf := make(map[string]int, len(names))
	for i, n := range names {
		leaf[n] = i
	}
	return parquet.NewSchema("labels", group), leaf
}

// WriteFrame writes f to path atomically with snappy-compressed typed columns.
func WriteFrame(path string, f *etl.Frame) error {
	schema, leaf := frameSchema(f)
	hdr, err := json.Marshal(f.Header())
	if err != nil {
		return err
	}
	out, err := iox.CreateAtomic(path)
	if err != nil {
		return err
	}
	pw := parquet.NewWriter(out, schema,
		parquet.Compression(&parquet.Snappy),
		parquet.KeyValueMetadata(HeaderMetadataKey, string(hdr)),
	)

	const batch = 1024
	buf := make([]parquet.Row, 0, batch)
	for r := 0; r < f.Rows(); r++ {
		buf = append(buf, frameRow(f, r, leaf))
		if len(buf) == batch {
			if _, err := pw.WriteRows(buf); err != nil {
				_ = out.Discard()
				return fmt.Errorf("write rows: %w", err)
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := pw.WriteRows(buf); err != nil {
			_ = out.Discard()
			return fmt.Errorf("write rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		_ = out.Discard()
		return fmt.Errorf("close writer: %w", err)
	}
	return out.Commit()
}

// frameRow lays out row r in leaf column order.
func frameRow(f *etl.Frame, r int, leaf map[string]int) parquet.Row {
	row := make(parquet.Row, f.Cols())
	for i := 0; i < f.Cols(); i++ {
		col := f.Column(i)
		idx := leaf[col.Name()]
		if col.IsNull(r) {
			row[idx] = parquet.NullValue().Level(0, 0, idx)
			continue
		}
		var v parquet.Value
		switch c := col.(type) {
		case *etl.BoolColumn:
			x, _ := c.Get(r)
			v = parquet.BooleanValue(x)
		case *etl.IntColumn:
			x, _ := c.Get(r)
			v = parquet.Int64Value(x)
		case *etl.FloatColumn:
			x, _ := c.Get(r)
			v = parquet.DoubleValue(x)
		case *etl.StringColumn:
			x, _ := c.Get(r)
			v = parquet.ByteArrayValue([]byte(x))
		}
		row[idx] = v.Level(0, 1, idx)
	}
	return row
}
