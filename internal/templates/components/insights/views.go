package insights

import (
	"context"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

var views = template.Must(template.New("insights").Parse(`
{{ define "dashboard" }}
<section class="upload">
  <h2>Upload Reservations</h2>
  <form method="post" action="/api/v1/dataset" enctype="multipart/form-data"
        hx-post="/api/v1/dataset" hx-encoding="multipart/form-data" hx-target="#dataset" hx-swap="innerHTML">
    <input type="file" name="file" accept=".csv,.xlsx,.json" required>
    <button type="submit">Upload</button>
  </form>
</section>
<section id="dataset">{{ template "dataset" .Dataset }}</section>
<section id="ask">{{ template "ask" . }}</section>
{{ end }}

{{ define "dataset" }}
{{ if .UploadError }}<div class="error" role="alert">{{ .UploadError }}</div>{{ end }}
{{ with .Metrics }}
<div class="metrics">
  <h2>Key Metrics</h2>
  <p class="source">{{ .FileName }} &middot; {{ .RowCount }} rows &middot; uploaded {{ .UploadedAt }}</p>
  <dl>
    <div><dt>Total Revenue</dt><dd>{{ .TotalRevenue }}</dd></div>
    {{ if .HasAverage }}<div><dt>Avg Daily Total Revenue</dt><dd>{{ .AverageDailyRevenue }}</dd></div>{{ end }}
    <div><dt>Total Court Utilization (court-hours)</dt><dd>{{ .TotalCourtUtilization }}</dd></div>
    <div><dt>Total Registrants</dt><dd>{{ .TotalRegistrants }}</dd></div>
    <div><dt>Billing Days</dt><dd>{{ .DistinctDates }}</dd></div>
  </dl>
  <p class="downloads">
    <a href="/api/v1/dataset/export.csv">Download Data as CSV</a>
    <a href="/api/v1/dataset/export.xlsx">Download Data as Excel</a>
  </p>
</div>
{{ else }}
{{ if not .UploadError }}<p class="empty">Upload a reservation file to see metrics.</p>{{ end }}
{{ end }}
{{ with .Table }}<div id="data-table">{{ template "table" . }}</div>{{ end }}
{{ end }}

{{ define "table" }}
<h2>Reservation Data</h2>
<table>
  <thead><tr>{{ range .Columns }}<th>{{ . }}</th>{{ end }}</tr></thead>
  <tbody>
  {{ range .Rows }}<tr>{{ range . }}<td>{{ . }}</td>{{ end }}</tr>{{ end }}
  </tbody>
</table>
<nav class="pager">
  {{ if .HasPrev }}<a href="/api/v1/dataset/rows?page={{ .PrevPage }}&per_page={{ .PerPage }}" hx-get="/api/v1/dataset/rows?page={{ .PrevPage }}&per_page={{ .PerPage }}" hx-target="#data-table">Previous</a>{{ end }}
  <span>Page {{ .Page }} of {{ .TotalPages }} ({{ .TotalRows }} rows)</span>
  {{ if .HasNext }}<a href="/api/v1/dataset/rows?page={{ .NextPage }}&per_page={{ .PerPage }}" hx-get="/api/v1/dataset/rows?page={{ .NextPage }}&per_page={{ .PerPage }}" hx-target="#data-table">Next</a>{{ end }}
</nav>
{{ end }}

{{ define "ask" }}
<h2>Ask AI</h2>
{{ if .ChatEnabled }}
<form method="post" action="/api/v1/ask" hx-post="/api/v1/ask" hx-target="#ask" hx-swap="innerHTML">
  <input type="text" name="query" placeholder="Ask for insights or analysis related to the data" required>
  <button type="submit">Ask</button>
</form>
{{ else }}
<p class="empty">The chat service is not configured.</p>
{{ end }}
{{ with .Ask }}
  {{ if .Error }}<div class="error" role="alert">{{ .Error }}</div>{{ end }}
  {{ if .Answer }}
  <div class="answer">
    <h3>Response</h3>
    <p class="query">{{ .Query }}</p>
    <div class="reply">{{ .Answer }}</div>
  </div>
  {{ end }}
{{ end }}
{{ end }}

{{ define "ask_oob" }}<section id="ask" hx-swap-oob="innerHTML">{{ template "ask" . }}</section>{{ end }}

{{ define "login" }}
<section class="login">
  <form method="post" action="/login">
    <label for="magic_string">Enter the magic string to access the app:</label>
    <input type="password" id="magic_string" name="magic_string" autocomplete="current-password" required>
    <button type="submit">Enter</button>
  </form>
  {{ if .Error }}<p class="error" role="alert">{{ .Error }}</p>{{ end }}
</section>
{{ end }}
`))

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return views.ExecuteTemplate(w, name, data)
	})
}

func DashboardLayout(data DashboardData) templ.Component {
	return render("dashboard", data)
}

// DatasetSection is the htmx target refreshed after each upload.
func DatasetSection(data DatasetData) templ.Component {
	return render("dataset", data)
}

func DataTable(page TablePage) templ.Component {
	return render("table", page)
}

func AskPanel(data DashboardData) templ.Component {
	return render("ask", data)
}

// UploadResult refreshes the dataset section and, out of band, clears the ask
// panel of answers about the replaced dataset.
func UploadResult(data DashboardData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := views.ExecuteTemplate(w, "dataset", data.Dataset); err != nil {
			return err
		}
		return views.ExecuteTemplate(w, "ask_oob", data)
	})
}

func LoginPage(data LoginData) templ.Component {
	return render("login", data)
}
