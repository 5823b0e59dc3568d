package etl_test

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/wdm0006/labeletl/pkg/etl"
)

type sliceSource struct {
	header etl.Header
	rows   []etl.Record
	err    error
}

func (s *sliceSource) Header() etl.Header { return s.header }
func (s *sliceSource) Close() error       { return nil }
func (s *sliceSource) Next() (etl.Record, error) {
	if len(s.rows) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	r := s.rows[0]
	s.rows = s.rows[1:]
	return r, nil
}

type memSink struct {
	header  etl.Header
	rows    []etl.Record
	calls   int
	failOn  int
	aborted bool
}

func (m *memSink) WriteHeader(h etl.Header) error { m.calls++; m.header = h; return nil }
func (m *memSink) Write(r etl.Record) error {
	m.calls++
	if m.failOn > 0 && len(m.rows)+1 == m.failOn {
		return errors.New("disk full")
	}
	m.rows = append(m.rows, r)
	return nil
}
func (m *memSink) Close() error { return nil }
func (m *memSink) Abort() error { m.aborted = true; return nil }

var labelHeader = etl.Header{"ImageID", "LabelName", "Confidence"}

func TestEngineScenario(t *testing.T) {
	src := &sliceSource{header: labelHeader, rows: []etl.Record{
		{"", "cat", "0.9"},
		{"i2", "dog", "0.8"},
		{"i3", "", "0.5"},
	}}
	sink := &memSink{}
	stats, sample, err := etl.Engine{}.Run(src, sink)
	if err != nil {
		t.Fatal(err)
	}
	want := etl.Stats{Initial: 3, Accepted: 2, Rejected: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(sample) != 2 {
		t.Fatalf("sample len = %d, want 2", len(sample))
	}
	if got := sample[0].Map(); !reflect.DeepEqual(got, map[string]string{"ImageID": "i2", "LabelName": "dog", "Confidence": "0.8"}) {
		t.Fatalf("sample[0] = %v", got)
	}
	if got := sample[1].Map(); !reflect.DeepEqual(got, map[string]string{"ImageID": "i3", "LabelName": "", "Confidence": "0.5"}) {
		t.Fatalf("sample[1] = %v", got)
	}
	if !reflect.DeepEqual(sink.header, labelHeader) {
		t.Fatalf("sink header = %v", sink.header)
	}
	if len(sink.rows) != 2 || sink.rows[0][0] != "i2" || sink.rows[1][0] != "i3" {
		t.Fatalf("sink rows = %v", sink.rows)
	}
}

func TestEngineWhitespaceAndShortRows(t *testing.T) {
	src := &sliceSource{header: etl.Header{"LabelName", "ImageID"}, rows: []etl.Record{
		{"cat", "   "},
		{"dog"},
		{"bird", "\t"},
		{"fish", " i9 "},
	}}
	sink := &memSink{}
	stats, sample, err := etl.Engine{}.Run(src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Initial != 4 || stats.Accepted != 1 || stats.Rejected != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if v, _ := sample[0].Get("ImageID"); v != " i9 " {
		t.Fatalf("accepted value should be kept verbatim, got %q", v)
	}
}

func TestEngineShortAcceptedRowIsPadded(t *testing.T) {
	src := &sliceSource{header: labelHeader, rows: []etl.Record{{"i1"}}}
	_, sample, err := etl.Engine{}.Run(src, &memSink{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sample[0].Values) != 3 {
		t.Fatalf("sample not padded: %v", sample[0].Values)
	}
	if v, ok := sample[0].Get("Confidence"); !ok || v != "" {
		t.Fatalf("Confidence = %q, %v", v, ok)
	}
}

func TestEngineEmptyInput(t *testing.T) {
	sink := &memSink{}
	stats, sample, err := etl.Engine{}.Run(&sliceSource{header: labelHeader}, sink)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (etl.Stats{}) {
		t.Fatalf("stats = %+v", stats)
	}
	if len(sample) != 0 {
		t.Fatalf("sample = %v", sample)
	}
	if sink.header == nil || len(sink.rows) != 0 {
		t.Fatalf("expected header only, got %v %v", sink.header, sink.rows)
	}
}

func TestEngineMissingKeyWritesNothing(t *testing.T) {
	src := &sliceSource{header: etl.Header{"LabelName", "Confidence"}, rows: []etl.Record{{"cat", "0.9"}}}
	sink := &memSink{}
	_, _, err := etl.Engine{}.Run(src, sink)
	if !errors.Is(err, etl.ErrSchema) {
		t.Fatalf("err = %v, want schema error", err)
	}
	if sink.calls != 0 {
		t.Fatalf("sink called %d times", sink.calls)
	}
}

func TestEngineSampleLimit(t *testing.T) {
	var rows []etl.Record
	for i := 0; i < 12; i++ {
		rows = append(rows, etl.Record{string(rune('a' + i)), "x", "1"})
	}
	stats, sample, err := etl.Engine{}.Run(&sliceSource{header: labelHeader, rows: rows}, &memSink{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Accepted != 12 || len(sample) != etl.DefaultSampleLimit {
		t.Fatalf("accepted=%d sample=%d", stats.Accepted, len(sample))
	}
	for i, s := range sample {
		if v, _ := s.Get("ImageID"); v != string(rune('a'+i)) {
			t.Fatalf("sample[%d] = %q, out of order", i, v)
		}
	}

	_, sample, _ = etl.Engine{SampleLimit: 2}.Run(&sliceSource{header: labelHeader, rows: rows[:4]}, &memSink{})
	if len(sample) != 2 {
		t.Fatalf("custom limit ignored: %d", len(sample))
	}
}

func TestEngineSampleIsDeepCopy(t *testing.T) {
	rec := etl.Record{"i1", "cat", "0.1"}
	_, sample, err := etl.Engine{}.Run(&sliceSource{header: labelHeader, rows: []etl.Record{rec}}, &memSink{})
	if err != nil {
		t.Fatal(err)
	}
	rec[0] = "mutated"
	if v, _ := sample[0].Get("ImageID"); v != "i1" {
		t.Fatalf("sample aliases source record: %q", v)
	}
}

func TestEnginePropagatesErrors(t *testing.T) {
	srcErr := errors.New("bad quote")
	_, _, err := etl.Engine{}.Run(&sliceSource{header: labelHeader, rows: []etl.Record{{"i1"}}, err: srcErr}, &memSink{})
	if !errors.Is(err, srcErr) {
		t.Fatalf("source error not propagated: %v", err)
	}

	sink := &memSink{failOn: 2}
	stats, _, err := etl.Engine{}.Run(&sliceSource{header: labelHeader, rows: []etl.Record{{"i1"}, {"i2"}, {"i3"}}}, sink)
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("sink error not propagated: %v", err)
	}
	if stats.Accepted != 1 {
		t.Fatalf("accepted = %d", stats.Accepted)
	}
}

func TestEngineCustomKey(t *testing.T) {
	src := &sliceSource{header: etl.Header{"id", "label"}, rows: []etl.Record{{"", "a"}, {"7", "b"}}}
	stats, _, err := etl.Engine{KeyField: "id"}.Run(src, &memSink{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Accepted+stats.Rejected != stats.Initial || stats.Accepted != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestSampleRowJSONKeepsHeaderOrder(t *testing.T) {
	row := etl.SampleRow{Fields: []string{"ImageID", "LabelName", "Confidence"}, Values: []string{"i2", "dog", "0.8"}}
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `{"ImageID":"i2","LabelName":"dog","Confidence":"0.8"}`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestValidateHeader(t *testing.T) {
	cases := []struct {
		name string
		h    etl.Header
		ok   bool
	}{
		{"labels", labelHeader, true},
		{"empty", etl.Header{}, false},
		{"blank name", etl.Header{"ImageID", " "}, false},
		{"duplicate", etl.Header{"ImageID", "ImageID"}, false},
	}
	for _, tc := range cases {
		err := etl.ValidateHeader(tc.h)
		if (err == nil) != tc.ok {
			t.Errorf("%s: err = %v", tc.name, err)
		}
		if err != nil && !errors.Is(err, etl.ErrSchema) {
			t.Errorf("%s: want schema error, got %v", tc.name, err)
		}
	}
}
