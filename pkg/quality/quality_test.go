package quality

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/wdm0006/labeletl/pkg/etl"
	"github.com/wdm0006/labeletl/pkg/io/csvio"
	"github.com/wdm0006/labeletl/pkg/io/parquetio"
)

var labelHeader = etl.Header{"ImageID", "LabelName", "Confidence"}

func writeCSV(t *testing.T, rows []etl.Record) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "processed_data.csv")
	if err := csvio.WriteAll(p, labelHeader, rows, csvio.WriterOptions{}); err != nil {
		t.Fatal(err)
	}
	return p
}

func statusOf(rep Report, id string) string {
	for _, c := range rep.Checks {
		if c.ID == id {
			return c.Status
		}
	}
	return ""
}

func TestDefaultSuite(t *testing.T) {
	convey.Convey("Given a filtered CSV output", t, func() {
		p := writeCSV(t, []etl.Record{{"i2", "dog", "0.8"}, {"i3", "", "0.5"}})
		v := NewValidator(DefaultSuite())

		convey.Convey("The default suite passes", func() {
			rep, err := v.Validate(context.Background(), p)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rep.Success, convey.ShouldBeTrue)
			convey.So(rep.Status, convey.ShouldEqual, StatusPass)
			convey.So(rep.RowCount, convey.ShouldEqual, 2)
			convey.So(rep.Summary.ChecksTotal, convey.ShouldEqual, len(DefaultSuite().Checks))
			convey.So(rep.Err(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a header-only output", t, func() {
		p := writeCSV(t, nil)
		rep, err := NewValidator(DefaultSuite()).Validate(context.Background(), p)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("The row count check fails", func() {
			convey.So(rep.Success, convey.ShouldBeFalse)
			convey.So(statusOf(rep, "row_count_min"), convey.ShouldEqual, StatusFail)
			convey.So(rep.Summary.Failing, convey.ShouldResemble, []string{"row_count_min"})
			convey.So(rep.Err(), convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a typed parquet output", t, func() {
		p := filepath.Join(t.TempDir(), "processed_data.parquet")
		w, err := parquetio.CreateTyped(p)
		convey.So(err, convey.ShouldBeNil)
		convey.So(w.WriteHeader(labelHeader), convey.ShouldBeNil)
		convey.So(w.Write(etl.Record{"i2", "dog", "0.8"}), convey.ShouldBeNil)
		convey.So(w.Close(), convey.ShouldBeNil)

		convey.Convey("A float confidence column is accepted", func() {
			rep, err := NewValidator(DefaultSuite()).Validate(context.Background(), p)
			convey.So(err, convey.ShouldBeNil)
			convey.So(statusOf(rep, "confidence_type"), convey.ShouldEqual, StatusPass)
			convey.So(rep.Success, convey.ShouldBeTrue)
		})
	})
}

func TestExpectations(t *testing.T) {
	lo, hi := 0.0, 1.0
	convey.Convey("Given rows with a missing key and an out of range value", t, func() {
		p := writeCSV(t, []etl.Record{{"i1", "cat", "0.5"}, {"", "dog", "1.5"}, {"i3", "bird", "x"}})
		s := Suite{Name: "custom", Checks: []Expectation{
			{ID: "id", Type: ExpectColumnNotNull, Column: "ImageID"},
			{ID: "labels", Type: ExpectColumnInSet, Column: "LabelName", Values: []string{"cat", "dog"}},
			{ID: "range", Type: ExpectColumnBetween, Column: "Confidence", Min: &lo, Max: &hi},
			{ID: "ghost", Type: ExpectColumnNotNull, Column: "Ghost"},
			{ID: "order", Type: ExpectColumnsMatchOrderedList, Columns: []string{"ImageID", "Confidence", "LabelName"}},
		}}
		v := NewValidator(s)
		v.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
		rep, err := v.Validate(context.Background(), p)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Each check reports its own verdict", func() {
			convey.So(statusOf(rep, "id"), convey.ShouldEqual, StatusFail)
			convey.So(statusOf(rep, "labels"), convey.ShouldEqual, StatusFail)
			convey.So(statusOf(rep, "range"), convey.ShouldEqual, StatusFail)
			convey.So(statusOf(rep, "ghost"), convey.ShouldEqual, StatusError)
			convey.So(statusOf(rep, "order"), convey.ShouldEqual, StatusFail)
			convey.So(rep.Status, convey.ShouldEqual, StatusError)
			convey.So(rep.Summary.ChecksError, convey.ShouldEqual, 1)
			convey.So(rep.Summary.ChecksFail, convey.ShouldEqual, 4)
			convey.So(rep.EvaluatedAt.Year(), convey.ShouldEqual, 2026)
		})

		convey.Convey("Unexpected values are listed", func() {
			for _, c := range rep.Checks {
				if c.ID == "labels" {
					convey.So(c.Observed["unexpected_count"], convey.ShouldEqual, 1)
					convey.So(c.Observed["unexpected_values"], convey.ShouldResemble, []string{"bird"})
				}
			}
		})
	})
}

func TestSuiteValidate(t *testing.T) {
	one := 1.0
	tests := []struct {
		name  string
		suite Suite
		want  string
	}{
		{"empty", Suite{}, "suite.checks must be non-empty"},
		{"missing id", Suite{Checks: []Expectation{{Type: ExpectColumnNotNull, Column: "a"}}}, "suite.checks[0].id is required"},
		{"duplicate", Suite{Checks: []Expectation{
			{ID: "a", Type: ExpectColumnNotNull, Column: "a"},
			{ID: "a", Type: ExpectColumnNotNull, Column: "b"},
		}}, `suite.checks[1].id must be unique (duplicate "a")`},
		{"no column", Suite{Checks: []Expectation{{ID: "a", Type: ExpectColumnNotNull}}}, "suite.checks[0] column_values_not_null requires column"},
		{"bad type", Suite{Checks: []Expectation{{ID: "a", Type: "nope"}}}, `suite.checks[0].type unsupported: "nope"`},
		{"no bounds", Suite{Checks: []Expectation{{ID: "a", Type: ExpectRowCountBetween}}}, "suite.checks[0] table_row_count_between requires min or max"},
		{"bad kind", Suite{Checks: []Expectation{{ID: "a", Type: ExpectColumnOfType, Column: "c", Types: []string{"decimal"}}}}, ""},
		{"ok", Suite{Checks: []Expectation{{ID: "a", Type: ExpectRowCountBetween, Min: &one}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.suite.Validate()
			switch {
			case tt.name == "bad kind":
				if err == nil {
					t.Fatal("expected error for unknown kind")
				}
			case tt.want == "":
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			case err == nil || err.Error() != tt.want:
				t.Errorf("Validate() = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadSuite(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"labels.yaml": "name: labels\nchecks:\n  - id: rows\n    type: table_row_count_between\n    min: 1\n  - id: key\n    type: column_values_not_null\n    column: ImageID\n",
		"labels.toml": "name = \"labels\"\n\n[[checks]]\nid = \"rows\"\ntype = \"table_row_count_between\"\nmin = 1.0\n\n[[checks]]\nid = \"key\"\ntype = \"column_values_not_null\"\ncolumn = \"ImageID\"\n",
		"labels.json": `{"name":"labels","checks":[{"id":"rows","type":"table_row_count_between","min":1},{"id":"key","type":"column_values_not_null","column":"ImageID"}]}`,
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name)
			if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			s, err := LoadSuite(p)
			if err != nil {
				t.Fatal(err)
			}
			if s.Name != "labels" || len(s.Checks) != 2 {
				t.Fatalf("suite = %+v", s)
			}
			if s.Checks[0].Min == nil || *s.Checks[0].Min != 1 {
				t.Fatalf("min = %v", s.Checks[0].Min)
			}
			if s.Checks[1].Column != "ImageID" {
				t.Errorf("column = %q, want %q", s.Checks[1].Column, "ImageID")
			}
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		p := filepath.Join(dir, "labels.ini")
		_ = os.WriteFile(p, []byte("x"), 0o644)
		if _, err := LoadSuite(p); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestValidateMissingOutput(t *testing.T) {
	_, err := NewValidator(DefaultSuite()).Validate(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	if err == nil {
		t.Fatal("expected error")
	}
}
