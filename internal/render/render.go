package render

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns event data into a user-facing display fragment for a
// named template. Implementations must be safe for concurrent use.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// HTML renders fragments from the embedded template set.
type HTML struct {
	tmpl *template.Template
}

// NewHTML parses the embedded templates.
func NewHTML() (*HTML, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &HTML{tmpl: tmpl}, nil
}

// Render executes the named template with the given data.
func (h *HTML) Render(name string, data any) (string, error) {
	var buf strings.Builder
	if err := h.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
