package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/wdm0006/labeletl/pkg/config"
	"github.com/wdm0006/labeletl/pkg/etl"
	"github.com/wdm0006/labeletl/pkg/logging"
	"github.com/wdm0006/labeletl/pkg/pipeline"
	"github.com/wdm0006/labeletl/pkg/profile"
	"github.com/wdm0006/labeletl/pkg/quality"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("labeletl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "Print version and exit")
	configPath := fs.String("config", "", "Optional config file (yaml, toml or json)")
	input := fs.String("input", "", "Input CSV, or - for standard input (default from config)")
	output := fs.String("output", "", "Output path (default: timestamped under the output root)")
	format := fs.String("format", "", "Output format: csv, parquet or parquet-typed")
	validate := fs.Bool("validate", false, "Validate the written output")
	suite := fs.String("suite", "", "Expectation suite file for -validate")
	asJSON := fs.Bool("json", false, "Print the run result as JSON")
	showProfile := fs.Bool("profile", false, "Print a column profile of the output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, "labeletl", version)
		return 0
	}

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	// Logs go to stderr so -json output stays parseable.
	logger := logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	runner, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	req := pipeline.Request{Input: *input, Output: *output, Format: *format, SuitePath: *suite, Stdin: stdin}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "validate" {
			req.Validate = validate
		}
	})

	res := runner.Run(context.Background(), req)
	var prof *profile.Collector
	if res.Success && *showProfile {
		if prof, err = profileOutput(res.OutputPath); err != nil {
			fmt.Fprintln(stderr, err)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if prof != nil {
			_ = enc.Encode(struct {
				Result  pipeline.RunResult  `json:"result"`
				Profile profile.JSONProfile `json:"profile"`
			}{res, prof.ReportJSON()})
		} else {
			_ = enc.Encode(res)
		}
	} else {
		printResult(stdout, res)
		if prof != nil {
			fmt.Fprintln(stdout)
			fmt.Fprint(stdout, prof.ReportText())
		}
	}
	if !res.Success || (*showProfile && prof == nil) {
		return 1
	}
	return 0
}

func printResult(w io.Writer, res pipeline.RunResult) {
	if !res.Success {
		fmt.Fprintf(w, "ETL process failed. Error: %s\n", res.Error)
		return
	}
	st := res.Statistics
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Initial Records", strconv.Itoa(st.Initial)})
	table.Append([]string{"Processed Records", strconv.Itoa(st.Accepted)})
	table.Append([]string{"Filtered Records", strconv.Itoa(st.Rejected)})
	if st.Validated != nil {
		table.Append([]string{"Validated Records", strconv.Itoa(*st.Validated)})
	}
	table.Append([]string{"Output File", res.OutputPath})
	for _, p := range res.Published {
		table.Append([]string{"Published", p})
	}
	table.Append([]string{"Timestamp", res.Timestamp})
	table.Render()

	if len(res.SampleRows) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSample Data")
	sample := tablewriter.NewWriter(w)
	sample.SetHeader(res.SampleRows[0].Fields)
	for _, row := range res.SampleRows {
		sample.Append(row.Values)
	}
	sample.Render()
}

func profileOutput(path string) (*profile.Collector, error) {
	src, err := quality.OpenOutput(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	var kinds []etl.Kind
	if k, ok := src.(interface{ Kinds() []etl.Kind }); ok {
		kinds = k.Kinds()
	}
	c := profile.NewCollector(src.Header(), kinds, 5)
	if err := c.ConsumeSource(src); err != nil {
		return nil, err
	}
	return c, nil
}
