// Package view parses the embedded invoice templates.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/odyssey-erp/odyssey-invoice/web"
)

// Engine executes named invoice templates.
type Engine struct {
	templates *template.Template
}

// NewEngine parses the embedded templates once at start-up.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		// initial is the issuer monogram shown when no logo is configured.
		"initial": func(s string) string {
			s = strings.TrimSpace(s)
			if s == "" {
				return ""
			}
			return strings.ToUpper(string([]rune(s)[0]))
		},
	}
	tpl, err := template.New("root").
		Option("missingkey=error").
		Funcs(funcMap).
		ParseFS(web.Templates, "templates/invoices/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse templates: %w", err)
	}
	return &Engine{templates: tpl}, nil
}

// Has reports whether a template with the given name was parsed.
func (e *Engine) Has(name string) bool {
	return e != nil && e.templates.Lookup(name) != nil
}

// Execute renders the named template into a string.
func (e *Engine) Execute(name string, data any) (string, error) {
	if e == nil {
		return "", fmt.Errorf("view: template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("view: execute %s: %w", name, err)
	}
	return buf.String(), nil
}
