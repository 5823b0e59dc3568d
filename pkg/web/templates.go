package web

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/wdm0006/labeletl/pkg/pipeline"
)

// Status is the alert shown at the top of the page.
type Status struct {
	Class   string
	Message string
}

// PageData fills the index page.
type PageData struct {
	Status     Status
	Input      string
	OutputRoot string
	Format     string
	Formats    []string
}

var readyStatus = Status{Class: "alert-info", Message: "ETL pipeline ready to run."}

// RunStatus turns a finished run into the message shown by /run-etl.
func RunStatus(res pipeline.RunResult) Status {
	if !res.Success {
		return Status{Class: "alert-danger", Message: "ETL process failed. Error: " + res.Error}
	}
	var processed, filtered int
	if res.Statistics != nil {
		processed, filtered = res.Statistics.Accepted, res.Statistics.Rejected
	}
	return Status{
		Class:   "alert-success",
		Message: fmt.Sprintf("ETL completed successfully! Processed %d records (filtered %d). Output: %s", processed, filtered, res.OutputPath),
	}
}

// StatusAlert renders the status block on its own.
func StatusAlert(s Status) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div id="status" class="alert %s" role="alert">%s</div>`,
			templ.EscapeString(s.Class), templ.EscapeString(s.Message))
		return err
	})
}

// Page renders the full index page.
func Page(d PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		if err := StatusAlert(d.Status).Render(ctx, w); err != nil {
			return err
		}
		var opts strings.Builder
		for _, f := range d.Formats {
			sel := ""
			if f == d.Format {
				sel = " selected"
			}
			fmt.Fprintf(&opts, `<option value="%s"%s>%s</option>`, templ.EscapeString(f), sel, templ.EscapeString(f))
		}
		_, err := fmt.Fprintf(w, pageBody,
			templ.EscapeString(d.Input),
			templ.EscapeString(d.OutputRoot),
			opts.String(),
		)
		return err
	})
}

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Label ETL</title>
<style>
body{font-family:system-ui,sans-serif;background:#1e1f22;color:#e6e6e6;margin:0}
.container{max-width:960px;margin:2rem auto;padding:0 1rem}
.card{background:#2b2d31;border-radius:6px;margin-bottom:1.5rem}
.card-header{background:#111;padding:.75rem 1rem;border-radius:6px 6px 0 0}
.card-body{padding:1rem}
.alert{padding:.75rem 1rem;border-radius:4px}
.alert-info{background:#123b4f}.alert-success{background:#1d4a2b}.alert-danger{background:#5a1f1f}
table{width:100%;border-collapse:collapse}th,td{text-align:left;padding:.25rem .5rem;border-bottom:1px solid #444}
#results,#loading{display:none}.cols{display:flex;gap:1rem}.cols>div{flex:1}
button{padding:.5rem 1rem}
</style>
</head>
<body>
<div class="container">
<div class="card"><div class="card-header"><h2>Label ETL</h2></div><div class="card-body">
<h4>ETL Pipeline Status</h4>
`

const pageBody = `
<h4>Project Overview</h4>
<ol>
<li>Reads label data from <code>%s</code></li>
<li>Drops records whose ImageID is missing or blank</li>
<li>Writes the remaining records under <code>%s</code></li>
<li>Optionally validates the written output</li>
</ol>
<h4>Actions</h4>
<select id="format">%s</select>
<label><input type="checkbox" id="validate"> validate</label>
<button id="run-etl-btn">Run ETL Pipeline</button>
<div id="loading">Processing data...</div>
</div></div>
<div id="results" class="card"><div class="card-header"><h4>ETL Results</h4></div><div class="card-body cols">
<div><h5>Statistics</h5><table><tbody>
<tr><th>Initial Records</th><td id="initial-count">-</td></tr>
<tr><th>Processed Records</th><td id="processed-count">-</td></tr>
<tr><th>Filtered Records</th><td id="filtered-count">-</td></tr>
<tr><th>Output File</th><td id="output-path">-</td></tr>
<tr><th>Timestamp</th><td id="timestamp">-</td></tr>
</tbody></table></div>
<div><h5>Sample Data</h5><table><thead id="sample-header"></thead><tbody id="sample-body"></tbody></table></div>
</div></div>
</div>
<script>
document.getElementById('run-etl-btn').addEventListener('click', function () {
  const btn = this, loading = document.getElementById('loading');
  loading.style.display = 'block'; btn.disabled = true;
  const q = new URLSearchParams({format: document.getElementById('format').value,
    validate: document.getElementById('validate').checked});
  fetch('/api/run-etl?' + q, {method: 'POST'}).then(r => r.json()).then(data => {
    if (!data.success) { alert('ETL process failed: ' + data.error); return; }
    const s = data.statistics;
    document.getElementById('initial-count').textContent = s.initial_count;
    document.getElementById('processed-count').textContent = s.transformed_count;
    document.getElementById('filtered-count').textContent = s.filtered_count;
    document.getElementById('output-path').textContent = data.output_path;
    document.getElementById('timestamp').textContent = new Date(data.timestamp).toLocaleString();
    const head = document.getElementById('sample-header'), body = document.getElementById('sample-body');
    head.innerHTML = ''; body.innerHTML = '';
    if (data.sample_rows.length > 0) {
      const tr = document.createElement('tr');
      Object.keys(data.sample_rows[0]).forEach(k => { const th = document.createElement('th'); th.textContent = k; tr.appendChild(th); });
      head.appendChild(tr);
      data.sample_rows.forEach(row => {
        const r = document.createElement('tr');
        Object.values(row).forEach(v => { const td = document.createElement('td'); td.textContent = v; r.appendChild(td); });
        body.appendChild(r);
      });
    }
    document.getElementById('results').style.display = 'block';
  }).catch(err => { console.error(err); alert('An error occurred while running the ETL process.'); })
    .finally(() => { loading.style.display = 'none'; btn.disabled = false; });
});
</script>
</body>
</html>
`
