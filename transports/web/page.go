package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// renderPage buffers the template so a failure still yields a clean 500.
func (s *Server) renderPage(w http.ResponseWriter, status int, view pageView) {
	var buf bytes.Buffer
	if err := pageTmpl.ExecuteTemplate(&buf, "index.html", view); err != nil {
		s.logger.With(map[string]any{"error": err}).Error("render page failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
