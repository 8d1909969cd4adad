package layouts

import (
	"context"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

type PageData struct {
	Title         string
	Authenticated bool
}

var (
	baseHead = template.Must(template.New("head").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ .Title }}</title>
<link rel="stylesheet" href="/static/css/main.css">
<script src="/static/js/htmx.min.js" defer></script>
</head>
<body>
<header class="app-header">
<h1>{{ .Title }}</h1>
{{ if .Authenticated }}<form method="post" action="/logout"><button type="submit">Sign out</button></form>{{ end }}
</header>
<main id="main-content">
`))
	baseFoot = template.Must(template.New("foot").Parse(`</main>
</body>
</html>
`))
)

// Base wraps page content in the document shell.
func Base(data PageData, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := baseHead.Execute(w, data); err != nil {
			return err
		}
		if content != nil {
			if err := content.Render(ctx, w); err != nil {
				return err
			}
		}
		return baseFoot.Execute(w, nil)
	})
}
