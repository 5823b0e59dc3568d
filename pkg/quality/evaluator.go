package quality

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wdm0006/labeletl/pkg/etl"
	"github.com/wdm0006/labeletl/pkg/profile"
)

const (
	StatusPass  = "pass"
	StatusFail  = "fail"
	StatusError = "error"
)

type Summary struct {
	ChecksTotal int      `json:"checks_total"`
	ChecksPass  int      `json:"checks_pass"`
	ChecksFail  int      `json:"checks_fail"`
	ChecksError int      `json:"checks_error"`
	Failing     []string `json:"failing_check_ids,omitempty"`
}

type CheckResult struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Observed map[string]any `json:"observed,omitempty"`
	Expected map[string]any `json:"expected,omitempty"`
}

type Report struct {
	Suite       string        `json:"suite"`
	Location    string        `json:"location,omitempty"`
	Success     bool          `json:"success"`
	Status      string        `json:"status"`
	RowCount    int           `json:"row_count"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
	Summary     Summary       `json:"summary"`
	Checks      []CheckResult `json:"checks"`
}

// Err summarises a failed report as an error, or returns nil.
func (r Report) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("suite %s: %d of %d checks failed (%s)", r.Suite, r.Summary.ChecksFail+r.Summary.ChecksError, r.Summary.ChecksTotal, strings.Join(r.Summary.Failing, ", "))
}

// Evaluate runs every expectation in s against a finished profile.
func Evaluate(s Suite, c *profile.Collector, now time.Time) Report {
	rep := Report{Suite: s.Name, RowCount: c.Rows(), EvaluatedAt: now.UTC()}
	checks := make([]CheckResult, 0, len(s.Checks))
	for _, e := range s.Checks {
		res := evaluateCheck(e, c)
		checks = append(checks, res)
		switch res.Status {
		case StatusPass:
			rep.Summary.ChecksPass++
		case StatusFail:
			rep.Summary.ChecksFail++
			rep.Summary.Failing = append(rep.Summary.Failing, res.ID)
		default:
			rep.Summary.ChecksError++
			rep.Summary.Failing = append(rep.Summary.Failing, res.ID)
		}
	}
	rep.Checks = checks
	rep.Summary.ChecksTotal = len(checks)
	switch {
	case rep.Summary.ChecksError > 0:
		rep.Status = StatusError
	case rep.Summary.ChecksFail > 0:
		rep.Status = StatusFail
	default:
		rep.Status = StatusPass
	}
	rep.Success = rep.Status == StatusPass
	return rep
}

func evaluateCheck(e Expectation, c *profile.Collector) CheckResult {
	kind := strings.ToLower(strings.TrimSpace(e.Type))
	res := CheckResult{ID: strings.TrimSpace(e.ID), Type: kind}
	pass := func() CheckResult { res.Status = StatusPass; return res }
	fail := func(format string, args ...any) CheckResult {
		res.Status = StatusFail
		res.Message = fmt.Sprintf(format, args...)
		return res
	}

	var col *profile.ColumnProfile
	if e.Column != "" {
		cp, ok := c.Column(e.Column)
		if !ok {
			res.Status = StatusError
			res.Message = fmt.Sprintf("column %s not found", e.Column)
			res.Observed = map[string]any{"columns": []string(c.Header())}
			return res
		}
		col = cp
	}

	switch kind {
	case ExpectColumnsMatchOrderedList:
		got := []string(c.Header())
		res.Observed = map[string]any{"columns": got}
		res.Expected = map[string]any{"columns": e.Columns}
		if !slices.Equal(got, e.Columns) {
			return fail("columns do not match the ordered list")
		}
		return pass()

	case ExpectColumnNotNull:
		res.Observed = map[string]any{"null_count": col.Nulls}
		if col.Nulls > 0 {
			return fail("column %s has %d null values", col.Name, col.Nulls)
		}
		return pass()

	case ExpectRowCountBetween:
		n := c.Rows()
		res.Observed = map[string]any{"row_count": n}
		res.Expected = bounds(e)
		if e.Min != nil && float64(n) < *e.Min {
			return fail("row count %d below minimum", n)
		}
		if e.Max != nil && float64(n) > *e.Max {
			return fail("row count %d above maximum", n)
		}
		return pass()

	case ExpectColumnOfType:
		res.Observed = map[string]any{"type": col.Kind.String(), "inferred": col.Inferred().String()}
		res.Expected = map[string]any{"types": e.Types}
		for _, t := range e.Types {
			if k, err := etl.ParseKind(t); err == nil && k == col.Kind {
				return pass()
			}
		}
		return fail("column %s is stored as %s", col.Name, col.Kind)

	case ExpectColumnInSet:
		allowed := make(map[string]struct{}, len(e.Values))
		for _, v := range e.Values {
			allowed[v] = struct{}{}
		}
		var bad int
		var examples []string
		for v, n := range col.Freqs {
			if _, ok := allowed[v]; !ok {
				bad += n
				examples = append(examples, v)
			}
		}
		slices.Sort(examples)
		if len(examples) > 5 {
			examples = examples[:5]
		}
		res.Observed = map[string]any{"unexpected_count": bad}
		if len(examples) > 0 {
			res.Observed["unexpected_values"] = examples
		}
		res.Expected = map[string]any{"values": e.Values}
		if bad > 0 {
			return fail("column %s has %d values outside allowed set", col.Name, bad)
		}
		return pass()

	case ExpectColumnBetween:
		res.Expected = bounds(e)
		res.Observed = map[string]any{"non_numeric": col.Num.NonNumeric}
		if col.Num.Count > 0 {
			res.Observed["min"] = col.Num.Min
			res.Observed["max"] = col.Num.Max
		}
		if col.Num.NonNumeric > 0 {
			return fail("column %s has %d non-numeric values", col.Name, col.Num.NonNumeric)
		}
		if col.Num.Count > 0 && e.Min != nil && col.Num.Min < *e.Min {
			return fail("column %s has values below %g", col.Name, *e.Min)
		}
		if col.Num.Count > 0 && e.Max != nil && col.Num.Max > *e.Max {
			return fail("column %s has values above %g", col.Name, *e.Max)
		}
		return pass()
	}

	res.Status = StatusError
	res.Message = fmt.Sprintf("unsupported expectation %q", kind)
	return res
}

func bounds(e Expectation) map[string]any {
	m := map[string]any{}
	if e.Min != nil {
		m["min"] = *e.Min
	}
	if e.Max != nil {
		m["max"] = *e.Max
	}
	return m
}
