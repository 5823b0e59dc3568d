package csvio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/wdm0006/labeletl/pkg/etl"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func readAll(t *testing.T, r *Reader) []etl.Record {
	t.Helper()
	var out []etl.Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, rec)
	}
}

func TestOpenReadsHeaderAndRecords(t *testing.T) {
	p := writeFile(t, t.TempDir(), "labels.csv", "\ufeffImageID,LabelName,Confidence\n,cat,0.9\ni2,dog,0.8\ni3\n")
	r, err := Open(p, ReaderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	if got := r.Header(); !reflect.DeepEqual(got, etl.Header{"ImageID", "LabelName", "Confidence"}) {
		t.Fatalf("header = %q", got)
	}
	recs := readAll(t, r)
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	if len(recs[2]) != 1 || recs[2][0] != "i3" {
		t.Fatalf("short record = %q", recs[2])
	}
	if r.Line() != 4 {
		t.Fatalf("line = %d", r.Line())
	}
}

func TestNewReaderFromStream(t *testing.T) {
	r, err := NewReaderFrom(strings.NewReader("\ufeffImageID;LabelName\ni1;cat\n"), ReaderOptions{Sniff: true})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r.Header(), etl.Header{"ImageID", "LabelName"}) {
		t.Fatalf("header = %q", r.Header())
	}
	if got := readAll(t, r); !reflect.DeepEqual(got, []etl.Record{{"i1", "cat"}}) {
		t.Fatalf("rows = %q", got)
	}
	if _, err := NewReaderFrom(strings.NewReader(""), ReaderOptions{}); !errors.Is(err, etl.ErrSchema) {
		t.Fatalf("empty stream err = %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "nope.csv"), ReaderOptions{})
	if !errors.Is(err, etl.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("message = %q", err)
	}
}

func TestOpenEmptyFileIsSchemaError(t *testing.T) {
	p := writeFile(t, t.TempDir(), "empty.csv", "")
	if _, err := Open(p, ReaderOptions{}); !errors.Is(err, etl.ErrSchema) {
		t.Fatalf("err = %v", err)
	}
}

func TestSniffDelimiter(t *testing.T) {
	p := writeFile(t, t.TempDir(), "labels.tsv", "ImageID\tLabelName\ni1\tcat, striped\n")
	r, err := Open(p, ReaderOptions{Sniff: true})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	if len(r.Header()) != 2 {
		t.Fatalf("header = %q", r.Header())
	}
	recs := readAll(t, r)
	if recs[0][1] != "cat, striped" {
		t.Fatalf("record = %q", recs[0])
	}
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out/processed_data.csv", "out/processed_data.csv.gz"} {
		p := filepath.Join(dir, name)
		h := etl.Header{"ImageID", "LabelName", "Confidence"}
		rows := []etl.Record{{"i2", "dog", "0.8"}, {"i3", "", "0.5"}, {"i4", "a \"quoted\", value", "1"}}
		if err := WriteAll(p, h, rows, WriterOptions{}); err != nil {
			t.Fatal(err)
		}
		r, err := Open(p, ReaderOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(r.Header(), h) {
			t.Fatalf("%s: header = %q", name, r.Header())
		}
		got := readAll(t, r)
		_ = r.Close()
		if len(got) != len(rows) {
			t.Fatalf("%s: got %d rows", name, len(got))
		}
		for i := range rows {
			if !reflect.DeepEqual(got[i], rows[i]) {
				t.Fatalf("%s: row %d = %q, want %q", name, i, got[i], rows[i])
			}
		}
	}
}

func TestWriterPadsShortRecords(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteAll(p, etl.Header{"ImageID", "LabelName"}, []etl.Record{{"i1"}, {"i2", "x", "extra"}}, WriterOptions{}); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(p)
	if string(b) != "ImageID,LabelName\ni1,\ni2,x\n" {
		t.Fatalf("got %q", b)
	}
}

func TestWriterAbortLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out.csv")
	w, err := Create(p, WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	_ = w.WriteHeader(etl.Header{"ImageID"})
	_ = w.Write(etl.Record{"i1"})
	if err := w.Abort(); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, found %d entries", len(entries))
	}
}

func TestWriterOverwrites(t *testing.T) {
	p := writeFile(t, t.TempDir(), "out.csv", "stale,data\n1,2\n3,4\n")
	if err := WriteAll(p, etl.Header{"ImageID"}, nil, WriterOptions{}); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(p)
	if string(b) != "ImageID\n" {
		t.Fatalf("got %q", b)
	}
}

func TestWriteBeforeHeader(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "out.csv"), WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Abort() }()
	if err := w.Write(etl.Record{"x"}); err == nil {
		t.Fatal("expected error")
	}
}

func BenchmarkReadWrite(b *testing.B) {
	dir := b.TempDir()
	var sb strings.Builder
	sb.WriteString("ImageID,LabelName,Confidence\n")
	for i := 0; i < 10000; i++ {
		sb.WriteString("img,label,0.5\n")
	}
	in := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(in, []byte(sb.String()), 0o644); err != nil {
		b.Fatal(err)
	}
	out := filepath.Join(dir, "out.csv")
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		r, err := Open(in, ReaderOptions{})
		if err != nil {
			b.Fatal(err)
		}
		w, err := Create(out, WriterOptions{})
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := (etl.Engine{}).Run(r, w); err != nil {
			b.Fatal(err)
		}
		if err := w.Close(); err != nil {
			b.Fatal(err)
		}
		_ = r.Close()
	}
}
