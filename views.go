package incognito

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed views/*.html
var viewFiles embed.FS

//go:embed static
var staticFiles embed.FS

// PageData is what every template receives.
type PageData struct {
	User          *User
	GoogleEnabled bool
	Secrets       []string
}

func (p *PageData) LoggedIn() bool { return IsAuthenticated(p.User) }

// Views holds the parsed page templates.
type Views struct {
	templates *template.Template
}

func NewViews() (*Views, error) {
	t, err := template.ParseFS(viewFiles, "views/*.html")
	if err != nil {
		return nil, err
	}
	return &Views{templates: t}, nil
}

// Render executes the named page. Output is buffered so a template error
// never leaves a half written page; a failed render sends the browser home.
func (v *Views) Render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := v.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("rendering view", "view", name, "error", err)
		redirectHome(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// StaticHandler serves the embedded assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
