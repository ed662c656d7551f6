package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

const (
	layoutFile      = "templates/layout.html.tmpl"
	templateSuffix  = ".html.tmpl"
	DefaultTemplate = "default"
)

// Renderer holds one parsed template per body file, each wrapped in the
// shared layout.
type Renderer struct {
	templates map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	layout, err := template.ParseFS(templateFS, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/*"+templateSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list email templates: %w", err)
	}

	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, file := range files {
		if file == layoutFile {
			continue
		}
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone email layout: %w", err)
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("failed to parse email template %s: %w", file, err)
		}
		r.templates[strings.TrimSuffix(path.Base(file), templateSuffix)] = t
	}

	if _, ok := r.templates[DefaultTemplate]; !ok {
		return nil, fmt.Errorf("email template %q is missing", DefaultTemplate)
	}
	return r, nil
}

func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// Resolve returns the first candidate that exists, or the default template.
func (r *Renderer) Resolve(candidates ...string) string {
	for _, name := range candidates {
		if r.Has(name) {
			return name
		}
	}
	return DefaultTemplate
}

func (r *Renderer) Render(name string, vars map[string]interface{}) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", vars); err != nil {
		return "", fmt.Errorf("failed to render email template %s: %w", name, err)
	}
	return buf.String(), nil
}
