package parquetio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	local "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pw "github.com/xitongsys/parquet-go/writer"

	"github.com/wdm0006/labeletl/pkg/etl"
	iox "github.com/wdm0006/labeletl/pkg/io/ioutils"
)

type WriterOptions struct {
	// Parallel is the number of marshalling goroutines (default 4).
	Parallel int64
	// Uncompressed disables snappy.
	Uncompressed bool
}

// Writer is a streaming columnar Sink. Every column is an optional UTF-8 string
// and empty values are stored as nulls.
type Writer struct {
	target string
	tmp    string
	opt    WriterOptions
	fw     source.ParquetFile
	jw     *pw.JSONWriter
	header etl.Header
	keys   []string
	rows   int
	done   bool
}

var _ etl.Sink = (*Writer)(nil)

// Create reserves a temporary file beside path; the parquet writer is opened
// once the header is known.
func Create(path string, opt WriterOptions) (*Writer, error) {
	tmp, err := iox.ReserveTemp(path)
	if err != nil {
		return nil, etl.Resource("create output", path, err)
	}
	if opt.Parallel <= 0 {
		opt.Parallel = 4
	}
	return &Writer{target: path, tmp: tmp, opt: opt}, nil
}

// fieldKey is the internal name of column i. The writer folds external names
// into Go identifiers, so headers such as "label" and "Label" would collide.
func fieldKey(i int) string { return "F" + strconv.Itoa(i) }

func schemaJSON(h etl.Header) (string, error) {
	type field struct {
		Tag string `json:"Tag"`
	}
	type schema struct {
		Tag    string  `json:"Tag"`
		Fields []field `json:"Fields"`
	}
	sc := schema{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for i, name := range h {
		if strings.ContainsAny(name, ",=.\t") || strings.TrimSpace(name) != name {
			return "", &etl.Error{Kind: etl.ErrSchema, Op: "parquet schema", Err: fmt.Errorf("column name %q cannot be stored", name)}
		}
		sc.Fields = append(sc.Fields, field{Tag: "name=" + name + ", inname=" + fieldKey(i) + ", type=UTF8, repetitiontype=OPTIONAL"})
	}
	b, err := json.Marshal(sc)
	return string(b), err
}

func (w *Writer) WriteHeader(h etl.Header) error {
	if w.jw != nil {
		return errors.New("parquet header already written")
	}
	sc, err := schemaJSON(h)
	if err != nil {
		return err
	}
	fw, err := local.NewLocalFileWriter(w.tmp)
	if err != nil {
		return etl.Resource("open output", w.target, err)
	}
	jw, err := pw.NewJSONWriter(sc, fw, w.opt.Parallel)
	if err != nil {
		_ = fw.Close()
		return etl.Resource("parquet writer init", w.target, err)
	}
	if w.opt.Uncompressed {
		jw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	} else {
		jw.CompressionType = parquet.CompressionCodec_SNAPPY
	}
	w.fw, w.jw, w.header = fw, jw, h.Clone()
	w.keys = make([]string, len(h))
	for i := range h {
		w.keys[i] = fieldKey(i)
	}
	return nil
}

func (w *Writer) Write(rec etl.Record) error {
	if w.jw == nil {
		return errors.New("parquet record written before header")
	}
	// Absent keys are written as nulls.
	row := make(map[string]string, len(w.header))
	for i, key := range w.keys {
		v := rec.Value(i)
		if v == "" {
			continue
		}
		if !utf8.ValidString(v) {
			return etl.Resource("parquet encode row", w.target, fmt.Errorf("column %q holds invalid UTF-8", w.header[i]))
		}
		row[key] = v
	}
	b, err := json.Marshal(row)
	if err != nil {
		return etl.Resource("parquet encode row", w.target, err)
	}
	if err := w.jw.Write(string(b)); err != nil {
		return etl.Resource("parquet write row", w.target, err)
	}
	w.rows++
	return nil
}

// Rows is the number of records written.
func (w *Writer) Rows() int { return w.rows }

func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if w.jw == nil {
		_ = os.Remove(w.tmp)
		return errors.New("parquet output closed before header")
	}
	if err := w.jw.WriteStop(); err != nil {
		_ = w.fw.Close()
		_ = os.Remove(w.tmp)
		return etl.Resource("parquet finalize", w.target, err)
	}
	if err := w.fw.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return etl.Resource("parquet finalize", w.target, err)
	}
	if err := iox.PromoteFile(w.tmp, w.target); err != nil {
		_ = os.Remove(w.tmp)
		return etl.Resource("commit output", w.target, err)
	}
	return nil
}

func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	if w.fw != nil {
		_ = w.fw.Close()
	}
	if err := os.Remove(w.tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
