package quality

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wdm0006/labeletl/pkg/etl"
	"github.com/wdm0006/labeletl/pkg/io/csvio"
	"github.com/wdm0006/labeletl/pkg/io/parquetio"
	"github.com/wdm0006/labeletl/pkg/logging"
	"github.com/wdm0006/labeletl/pkg/profile"
)

// Validator checks finished outputs against Suite.
type Validator struct {
	Suite Suite
	Now   func() time.Time
}

func NewValidator(s Suite) *Validator {
	return &Validator{Suite: s, Now: time.Now}
}

// kinded is implemented by sources that know their stored column types.
type kinded interface {
	Kinds() []etl.Kind
}

// OpenOutput opens a written output for reading, choosing the decoder by extension.
func OpenOutput(path string) (etl.Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		r, err := parquetio.Open(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	r, err := csvio.Open(path, csvio.ReaderOptions{})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Validate profiles the output at location and evaluates the suite. The
// returned error covers reading the output only; a failed suite is reported
// through Report.Success.
func (v *Validator) Validate(ctx context.Context, location string) (Report, error) {
	if err := v.Suite.Validate(); err != nil {
		return Report{}, fmt.Errorf("suite %s: %w", v.Suite.Name, err)
	}
	src, err := OpenOutput(location)
	if err != nil {
		return Report{}, err
	}
	defer src.Close()

	var kinds []etl.Kind
	if k, ok := src.(kinded); ok {
		kinds = k.Kinds()
	}
	col := profile.NewCollector(src.Header(), kinds, 0)
	for _, e := range v.Suite.Checks {
		if strings.EqualFold(e.Type, ExpectColumnInSet) {
			col.Track(e.Column)
		}
	}
	if err := consume(ctx, col, src); err != nil {
		return Report{}, etl.Resource("validate", location, err)
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	rep := Evaluate(v.Suite, col, now())
	rep.Location = location
	logging.FromContext(ctx).Debug("output validated",
		"suite", rep.Suite, "location", location, "status", rep.Status, "rows", rep.RowCount)
	return rep, nil
}

func consume(ctx context.Context, col *profile.Collector, src etl.Source) error {
	if ctx.Done() == nil {
		return col.ConsumeSource(src)
	}
	return col.ConsumeSource(ctxSource{ctx: ctx, Source: src})
}

// ctxSource stops a drain once ctx is cancelled.
type ctxSource struct {
	ctx context.Context
	etl.Source
}

func (s ctxSource) Next() (etl.Record, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	return s.Source.Next()
}
