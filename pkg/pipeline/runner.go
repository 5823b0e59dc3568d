// Package pipeline runs one filter-and-report pass from an input file to a
// written, optionally validated and published, output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wdm0006/labeletl/pkg/config"
	"github.com/wdm0006/labeletl/pkg/etl"
	"github.com/wdm0006/labeletl/pkg/io/csvio"
	"github.com/wdm0006/labeletl/pkg/io/parquetio"
	"github.com/wdm0006/labeletl/pkg/logging"
	"github.com/wdm0006/labeletl/pkg/publish"
	"github.com/wdm0006/labeletl/pkg/quality"
)

const (
	FormatCSV          = "csv"
	FormatParquet      = "parquet"
	FormatParquetTyped = "parquet-typed"
)

// StdinInput names Request.Stdin as the input.
const StdinInput = "-"

// Request overrides configured defaults for a single run. Zero fields fall
// back to the Runner's configuration.
type Request struct {
	Input     string
	Output    string
	Format    string
	Validate  *bool
	SuitePath string
	// Stdin is read as CSV when Input is StdinInput.
	Stdin io.Reader
}

// Runner sequences source, engine, sink, validation and publishing. It holds
// no per-run state and may be shared by concurrent callers.
type Runner struct {
	Config     config.PipelineConfig
	Logger     *slog.Logger
	Now        func() time.Time
	Publishers []publish.Publisher
	// Suite is used when neither the request nor the config names a suite file.
	Suite quality.Suite
}

// New builds a Runner. A latest-copy publisher is added first when cfg.Latest is set.
func New(cfg config.PipelineConfig, logger *slog.Logger, pubs ...publish.Publisher) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	var all []publish.Publisher
	if cfg.Latest {
		all = append(all, publish.NewLatestCopy(cfg.OutputRoot))
	}
	all = append(all, pubs...)
	return &Runner{
		Config:     cfg,
		Logger:     logger,
		Now:        time.Now,
		Publishers: all,
		Suite:      quality.DefaultSuite(),
	}
}

// Run executes one run. Every failure is logged and reported in the result;
// Run itself never returns an error.
func (r *Runner) Run(ctx context.Context, req Request) RunResult {
	runID := uuid.NewString()
	log := r.Logger.With("run_id", runID)
	ctx = logging.NewContext(ctx, log)
	now := r.now()

	res := RunResult{RunID: runID, Timestamp: now.Format(TimeLayout)}
	if err := r.run(ctx, req, now, log, &res); err != nil {
		log.Error("run failed", "error", err, "kind", kindName(err))
		res.Success = false
		res.Error = err.Error()
		return res
	}
	res.Success = true
	log.Info("run completed",
		"output", res.OutputPath,
		"initial_count", res.Statistics.Initial,
		"transformed_count", res.Statistics.Accepted,
		"filtered_count", res.Statistics.Rejected,
	)
	return res
}

func (r *Runner) run(ctx context.Context, req Request, now time.Time, log *slog.Logger, res *RunResult) error {
	cfg := r.Config
	input := firstNonEmpty(req.Input, cfg.Input)
	format := strings.ToLower(firstNonEmpty(req.Format, cfg.Format, FormatCSV))
	if !config.ValidFormat(format) {
		return fmt.Errorf("unsupported output format %q", format)
	}
	output := req.Output
	if output == "" {
		output = DefaultOutputPath(cfg.OutputRoot, format, now)
	}
	validate := cfg.Validate
	if req.Validate != nil {
		validate = *req.Validate
	}
	res.Format = format
	log = log.With("input", input, "format", format)

	src, err := r.openSource(input, req.Stdin)
	if err != nil {
		return err
	}
	defer src.Close()

	// Checked before the sink exists so a schema failure leaves nothing behind.
	if _, err := etl.CheckSchema(src.Header(), r.keyField()); err != nil {
		return err
	}

	sink, err := r.createSink(format, output)
	if err != nil {
		return err
	}
	log.Info("processing", "output", output)

	eng := etl.Engine{KeyField: r.keyField(), SampleLimit: cfg.SampleLimit}
	stats, sample, err := eng.Run(src, sink)
	if err != nil {
		_ = sink.Abort()
		return etl.Resource("process", input, err)
	}
	if err := sink.Close(); err != nil {
		_ = sink.Abort()
		return etl.Resource("write output", output, err)
	}
	res.Statistics = &Statistics{Stats: stats}
	res.SampleRows = sample
	res.OutputPath = output
	log.Info("written", "output", output, "rows", stats.Accepted, "rejected", stats.Rejected)

	if validate {
		suite, err := r.suite(req)
		if err != nil {
			return err
		}
		rep, err := quality.NewValidator(suite).Validate(ctx, output)
		if err != nil {
			return err
		}
		res.Validation = &rep
		if !rep.Success {
			log.Warn("validation failed", "suite", rep.Suite, "failing", rep.Summary.Failing)
			return etl.Validation(output, rep.Err())
		}
		n := rep.RowCount
		res.Statistics.Validated = &n
		log.Info("validated", "suite", rep.Suite, "checks", rep.Summary.ChecksTotal)
	}

	for _, p := range r.Publishers {
		loc, err := p.Publish(ctx, output)
		if err != nil {
			return fmt.Errorf("publish %s: %w", p.Name(), err)
		}
		if loc != "" {
			res.Published = append(res.Published, loc)
			log.Info("published", "publisher", p.Name(), "location", loc)
		}
	}
	return nil
}

func (r *Runner) openSource(input string, stdin io.Reader) (etl.Source, error) {
	if input == StdinInput && stdin == nil {
		return nil, etl.NotFound("open input", input, errors.New("no standard input attached"))
	}
	if input != StdinInput && strings.EqualFold(filepath.Ext(input), ".parquet") {
		pr, err := parquetio.Open(input)
		if err != nil {
			return nil, err
		}
		return pr, nil
	}
	opt := csvio.ReaderOptions{}
	switch d := r.Config.Delimiter; d {
	case "auto":
		opt.Sniff = true
	case "":
	default:
		opt.Delimiter = []rune(d)[0]
	}
	var cr *csvio.Reader
	var err error
	if input == StdinInput {
		cr, err = csvio.NewReaderFrom(stdin, opt)
	} else {
		cr, err = csvio.Open(input, opt)
	}
	if err != nil {
		return nil, err
	}
	return cr, nil
}

func (r *Runner) createSink(format, output string) (etl.Sink, error) {
	switch format {
	case FormatParquet:
		w, err := parquetio.Create(output, parquetio.WriterOptions{Parallel: r.Config.Parallel})
		if err != nil {
			return nil, err
		}
		return w, nil
	case FormatParquetTyped:
		w, err := parquetio.CreateTyped(output)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		w, err := csvio.Create(output, csvio.WriterOptions{})
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

func (r *Runner) suite(req Request) (quality.Suite, error) {
	if p := firstNonEmpty(req.SuitePath, r.Config.SuitePath); p != "" {
		return quality.LoadSuite(p)
	}
	if len(r.Suite.Checks) == 0 {
		return quality.DefaultSuite(), nil
	}
	return r.Suite, nil
}

func (r *Runner) keyField() string {
	return firstNonEmpty(r.Config.KeyField, etl.DefaultKeyField)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// DefaultOutputPath returns <root>/<prefix>_<YYYYMMDD_HHMMSS>/processed_data.<ext>.
func DefaultOutputPath(root, format string, t time.Time) string {
	prefix, ext := "csv", "csv"
	switch format {
	case FormatParquet:
		prefix, ext = "parquet", "parquet"
	case FormatParquetTyped:
		prefix, ext = "parquet_typed", "parquet"
	}
	dir := prefix + "_" + t.Format("20060102_150405")
	return filepath.Join(root, dir, "processed_data."+ext)
}

func kindName(err error) string {
	switch etl.KindOf(err) {
	case etl.ErrNotFound:
		return "not_found"
	case etl.ErrSchema:
		return "schema"
	case etl.ErrValidation:
		return "validation"
	case etl.ErrResource:
		return "resource"
	default:
		return "other"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
