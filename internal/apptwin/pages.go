package apptwin

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFiles embed.FS

func parseTemplates() (*template.Template, error) {
	return template.New("twin").ParseFS(templateFiles, "templates/*.html")
}

// pageData is the view model shared by every page.
type pageData struct {
	Title  string
	User   string
	Error  string
	Jobs   []Job
	Job    Job
	Charts bool
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, page, data); err != nil {
		LoggerFrom(r).Error("render page", "page", page, "error", err)
	}
}
