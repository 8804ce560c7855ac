package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
)

// Renderer manages template parsing and rendering with isolated template
// sets. Pages render inside the base layout; partials are standalone
// fragments returned to in-page form posts.
//
// Templates are organized as:
//   - layouts/base.html       - the site layout
//   - partials/*.html         - standalone fragments (auth form, etc.)
//   - pages/*.html            - full pages (use base layout)
type Renderer struct {
	templates map[string]*template.Template
	logger    *slog.Logger
	mu        sync.RWMutex

	templatesDir string
}

// RendererConfig holds configuration for the renderer.
type RendererConfig struct {
	TemplatesDir string
	Logger       *slog.Logger
}

// NewRenderer creates a new template renderer.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	r := &Renderer{
		templates:    make(map[string]*template.Template),
		logger:       cfg.Logger,
		templatesDir: cfg.TemplatesDir,
	}

	if err := r.loadTemplates(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Renderer) loadTemplates() error {
	layout := filepath.Join(r.templatesDir, "layouts", "base.html")

	pageFiles, err := filepath.Glob(filepath.Join(r.templatesDir, "pages", "*.html"))
	if err != nil {
		return fmt.Errorf("glob pages: %w", err)
	}
	partialFiles, err := filepath.Glob(filepath.Join(r.templatesDir, "partials", "*.html"))
	if err != nil {
		return fmt.Errorf("glob partials: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, page := range pageFiles {
		name := strings.TrimSuffix(filepath.Base(page), ".html")
		files := append([]string{layout}, partialFiles...)
		files = append(files, page)
		tmpl, err := template.ParseFiles(files...)
		if err != nil {
			return fmt.Errorf("parse page %s: %w", name, err)
		}
		r.templates["pages/"+name] = tmpl
	}

	for _, partial := range partialFiles {
		name := strings.TrimSuffix(filepath.Base(partial), ".html")
		tmpl, err := template.ParseFiles(partial)
		if err != nil {
			return fmt.Errorf("parse partial %s: %w", name, err)
		}
		r.templates["partials/"+name] = tmpl
	}

	return nil
}

// ListTemplates returns the names of all loaded templates.
func (r *Renderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}

// RenderHTTP renders a page template inside the base layout and writes it
// to the response. Render errors produce a 500 without partial output.
func (r *Renderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	r.render(w, "pages/"+name, "base", data)
}

// RenderPartial renders a standalone fragment.
func (r *Renderer) RenderPartial(w http.ResponseWriter, name string, data interface{}) {
	r.render(w, "partials/"+name, name, data)
}

func (r *Renderer) render(w http.ResponseWriter, key, entry string, data interface{}) {
	r.mu.RLock()
	tmpl, ok := r.templates[key]
	r.mu.RUnlock()

	if !ok {
		r.logger.Error("template not found", "template", key)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Render to a buffer first so a mid-render failure doesn't leave a
	// half-written response.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, entry, data); err != nil {
		r.logger.Error("template render failed", "template", key, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
