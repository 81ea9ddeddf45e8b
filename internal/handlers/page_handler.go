package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/ternarybob/arbor"
)

//go:embed pages/*.html
var pageFS embed.FS

// PageData is rendered into the control page
type PageData struct {
	Period   string
	Workbook string
	Version  string
}

type PageHandler struct {
	logger    arbor.ILogger
	templates *template.Template
	data      PageData
}

func NewPageHandler(data PageData, logger arbor.ILogger) *PageHandler {
	return &PageHandler{
		logger:    logger,
		templates: template.Must(template.ParseFS(pageFS, "pages/*.html")),
		data:      data,
	}
}

// ServePage creates a handler function for serving a specific page template
func (h *PageHandler) ServePage(templateName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := h.templates.ExecuteTemplate(w, templateName, h.data); err != nil {
			h.logger.Error().Err(err).Str("template", templateName).Msg("Failed to render page")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
