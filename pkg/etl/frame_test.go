package etl

import (
	"errors"
	"os"
	"testing"
)

func TestClassifyValue(t *testing.T) {
	cases := map[string]Kind{
		"":       KindInvalid,
		"  ":     KindInvalid,
		"42":     KindInt,
		"-7":     KindInt,
		"0.8":    KindFloat,
		".5":     KindFloat,
		"1e3":    KindFloat,
		"true":   KindBool,
		"FALSE":  KindBool,
		"i2":     KindString,
		"NaN":    KindString,
		"0x10":   KindString,
		"1e9999": KindString,
	}
	for in, want := range cases {
		if got := ClassifyValue(in); got != want {
			t.Errorf("ClassifyValue(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestKindTallyWidens(t *testing.T) {
	var tally KindTally
	for _, v := range []string{"", "1", "2"} {
		tally.Observe(v)
	}
	if tally.Kind() != KindInt {
		t.Fatalf("got %v", tally.Kind())
	}
	tally.Observe("0.5")
	if tally.Kind() != KindFloat {
		t.Fatalf("got %v", tally.Kind())
	}
	tally.Observe("true")
	if tally.Kind() != KindString {
		t.Fatalf("got %v", tally.Kind())
	}

	var empty KindTally
	if empty.Kind() != KindString {
		t.Fatalf("empty column should be string, got %v", empty.Kind())
	}
}

func TestFrameAppendAndText(t *testing.T) {
	f, err := NewFrame(Header{"ImageID", "Confidence", "Count", "Verified"}, []Kind{KindString, KindFloat, KindInt, KindBool})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AppendRecord(Record{"i1", "1.0", "3", "TRUE"}); err != nil {
		t.Fatal(err)
	}
	if err := f.AppendRecord(Record{"i2"}); err != nil {
		t.Fatal(err)
	}
	if f.Rows() != 2 {
		t.Fatalf("rows = %d", f.Rows())
	}
	for i, want := range []string{"i1", "1", "3", "true"} {
		if got := f.Column(i).Text(0); got != want {
			t.Fatalf("row 0 col %d = %q, want %q", i, got, want)
		}
	}
	if !f.Column(1).IsNull(1) {
		t.Fatal("short record should leave Confidence null")
	}
	if err := f.AppendRecord(Record{"i3", "abc"}); err == nil {
		t.Fatal("expected parse error for non-numeric value in float column")
	}
}

func TestNewFrameRejectsMismatch(t *testing.T) {
	if _, err := NewFrame(Header{"a", "b"}, []Kind{KindString}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewFrame(Header{"a"}, []Kind{KindInvalid}); err == nil {
		t.Fatal("expected error")
	}
}

func TestErrorClasses(t *testing.T) {
	err := NotFound("open", "data/labels.csv", os.ErrNotExist)
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("errors.Is failed for %v", err)
	}
	if KindOf(err) != ErrNotFound {
		t.Fatalf("KindOf = %v", KindOf(err))
	}
	if got := err.Error(); got != "open: not found (data/labels.csv): file does not exist" {
		t.Fatalf("message = %q", got)
	}

	wrapped := Resource("write", "out.csv", err)
	if KindOf(wrapped) != ErrNotFound {
		t.Fatal("Resource should not reclassify an already classified error")
	}
	if Resource("write", "x", nil) != nil {
		t.Fatal("Resource(nil) should be nil")
	}
	if KindOf(errors.New("plain")) != nil {
		t.Fatal("plain error has no class")
	}
}
