package pipeline

import (
	"encoding/json"

	"github.com/wdm0006/labeletl/pkg/etl"
	"github.com/wdm0006/labeletl/pkg/quality"
)

// TimeLayout is ISO-8601 local time with microseconds.
const TimeLayout = "2006-01-02T15:04:05.000000"

type Statistics struct {
	etl.Stats
	Validated *int `json:"validated_count,omitempty"`
}

// RunResult is built once per run and never mutated by callers.
type RunResult struct {
	Success    bool            `json:"success"`
	RunID      string          `json:"run_id,omitempty"`
	Timestamp  string          `json:"timestamp"`
	Format     string          `json:"format,omitempty"`
	Statistics *Statistics     `json:"statistics,omitempty"`
	SampleRows []etl.SampleRow `json:"sample_rows"`
	OutputPath string          `json:"output_path,omitempty"`
	Published  []string        `json:"published,omitempty"`
	Validation *quality.Report `json:"validation,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type failureResult struct {
	Success    bool            `json:"success"`
	RunID      string          `json:"run_id,omitempty"`
	Error      string          `json:"error"`
	Timestamp  string          `json:"timestamp"`
	Validation *quality.Report `json:"validation,omitempty"`
}

// MarshalJSON writes the success shape with statistics and sample rows, or the
// failure shape with only the error and timestamp.
func (r RunResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(failureResult{
			Success:    false,
			RunID:      r.RunID,
			Error:      r.Error,
			Timestamp:  r.Timestamp,
			Validation: r.Validation,
		})
	}
	type plain RunResult
	if r.SampleRows == nil {
		r.SampleRows = []etl.SampleRow{}
	}
	return json.Marshal(plain(r))
}
