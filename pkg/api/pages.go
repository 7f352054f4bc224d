package api

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed web
var webFS embed.FS

var pageTemplates = template.Must(template.ParseFS(webFS, "web/*.html"))

// StaticHandler serves the stylesheet and other assets under /static/
func StaticHandler() http.Handler {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// handleIndexPage handles GET /
func (h *Handler) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, "index.html", map[string]interface{}{
		"Title": h.cfg.Report.Title,
	})
}

// handleSessionPage handles GET /sessions/{id}; unknown sessions go back to the upload page
func (h *Handler) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetSession(id); err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderPage(w, "session.html", map[string]interface{}{
		"Title":      h.cfg.Report.Title,
		"SessionID":  id,
		"Filename":   h.cfg.Report.Filename,
		"ScriptBase": h.cfg.Renderer.VegaScriptBase,
	})
}

func (h *Handler) renderPage(w http.ResponseWriter, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("[API] Failed to render page %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
