package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/wdm0006/labeletl/pkg/etl"
	"github.com/wdm0006/labeletl/pkg/io/csvio"
	"github.com/wdm0006/labeletl/pkg/io/parquetio"
)

var labels = []string{"/m/01g317", "/m/09j2d", "/m/05s2s", "/m/0jbk", "/m/07j7r"}

// genSource produces synthetic label rows; a share of them has a blank key.
type genSource struct {
	header etl.Header
	remain int
	missp  float64
	rnd    *rand.Rand
}

func (g *genSource) Header() etl.Header { return g.header }

func (g *genSource) Next() (etl.Record, error) {
	if g.remain <= 0 {
		return nil, io.EOF
	}
	g.remain--
	id := fmt.Sprintf("%016x", g.rnd.Uint64())
	if g.rnd.Float64() < g.missp {
		id = "  "
	}
	return etl.Record{id, labels[g.rnd.Intn(len(labels))], strconv.FormatFloat(g.rnd.Float64(), 'f', 2, 64)}, nil
}

func (g *genSource) Close() error { return nil }

// blackholeSink counts rows and discards them.
type blackholeSink struct{ rows int }

func (b *blackholeSink) WriteHeader(etl.Header) error { return nil }
func (b *blackholeSink) Write(etl.Record) error       { b.rows++; return nil }
func (b *blackholeSink) Close() error                 { return nil }
func (b *blackholeSink) Abort() error                 { return nil }

func main() {
	var (
		rows    = flag.Int("rows", 1_000_000, "total rows to generate")
		missp   = flag.Float64("missing", 0.05, "probability of a blank ImageID")
		sinkArg = flag.String("sink", "null", "sink: null, csv, parquet or parquet-typed")
		dir     = flag.String("dir", os.TempDir(), "directory for file sinks")
		jsonOut = flag.Bool("json", false, "emit JSON summary")
		seed    = flag.Int64("seed", 42, "random seed")
	)
	flag.Parse()

	src := &genSource{
		header: etl.Header{"ImageID", "LabelName", "Confidence"},
		remain: *rows,
		missp:  *missp,
		rnd:    rand.New(rand.NewSource(*seed)),
	}
	sink, path, err := openSink(*sinkArg, *dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	runtime.GC()
	var msBefore, msAfter runtime.MemStats
	runtime.ReadMemStats(&msBefore)
	start := time.Now()
	stats, _, err := etl.Engine{}.Run(src, sink)
	if err == nil {
		err = sink.Close()
	}
	if err != nil {
		_ = sink.Abort()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	elapsed := time.Since(start)
	runtime.ReadMemStats(&msAfter)
	if path != "" {
		defer os.Remove(path)
	}

	rowsPerSec := float64(stats.Initial) / elapsed.Seconds()
	summary := map[string]any{
		"rows":                  stats.Initial,
		"accepted":              stats.Accepted,
		"rejected":              stats.Rejected,
		"sink":                  *sinkArg,
		"elapsed_ms":            elapsed.Milliseconds(),
		"rows_per_sec":          rowsPerSec,
		"mem_total_alloc_bytes": msAfter.TotalAlloc - msBefore.TotalAlloc,
		"gc_num":                msAfter.NumGC - msBefore.NumGC,
	}
	if *jsonOut {
		b, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(b))
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.AppendBulk([][]string{
		{"Rows", strconv.Itoa(stats.Initial)},
		{"Accepted", strconv.Itoa(stats.Accepted)},
		{"Rejected", strconv.Itoa(stats.Rejected)},
		{"Sink", *sinkArg},
		{"Elapsed", elapsed.String()},
		{"Throughput", fmt.Sprintf("%.0f rows/s", rowsPerSec)},
		{"Total Alloc (delta)", fmt.Sprintf("%d MB", (msAfter.TotalAlloc-msBefore.TotalAlloc)/1024/1024)},
		{"GC cycles (delta)", strconv.Itoa(int(msAfter.NumGC - msBefore.NumGC))},
	})
	table.Render()
}

func openSink(kind, dir string) (etl.Sink, string, error) {
	switch kind {
	case "null":
		return &blackholeSink{}, "", nil
	case "csv":
		p := filepath.Join(dir, "etlbench.csv")
		w, err := csvio.Create(p, csvio.WriterOptions{})
		return w, p, err
	case "parquet":
		p := filepath.Join(dir, "etlbench.parquet")
		w, err := parquetio.Create(p, parquetio.WriterOptions{Parallel: int64(runtime.NumCPU())})
		return w, p, err
	case "parquet-typed":
		p := filepath.Join(dir, "etlbench_typed.parquet")
		w, err := parquetio.CreateTyped(p)
		return w, p, err
	default:
		return nil, "", fmt.Errorf("unknown sink %q", kind)
	}
}
