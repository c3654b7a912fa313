// Package render builds email bodies from embedded templates.
//
// Text templates use text/template, .html templates use html/template with
// contextual escaping. The executors pass a plain map context, the same shape
// for text and HTML variants of the same email.
package render

import (
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	texttemplate "text/template"
)

//go:embed templates/*.txt templates/*.html
var templatesFS embed.FS

// Renderer renders a named template with a context mapping.
type Renderer interface {
	Render(name string, ctx map[string]any) (string, error)
}

// Templates is the embedded-FS Renderer used in production.
type Templates struct {
	once sync.Once
	text *texttemplate.Template
	html *htmltemplate.Template
	err  error
}

func New() *Templates { return &Templates{} }

func (t *Templates) load() {
	t.text, t.err = texttemplate.ParseFS(templatesFS, "templates/*.txt")
	if t.err != nil {
		return
	}
	t.html, t.err = htmltemplate.ParseFS(templatesFS, "templates/*.html")
}

func (t *Templates) Render(name string, ctx map[string]any) (string, error) {
	t.once.Do(t.load)
	if t.err != nil {
		return "", fmt.Errorf("render %s: %w", name, t.err)
	}

	var b strings.Builder
	var err error
	if strings.HasSuffix(name, ".html") {
		err = t.html.ExecuteTemplate(&b, name, ctx)
	} else {
		err = t.text.ExecuteTemplate(&b, name, ctx)
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}
