// Package markup turns a render request into the HTML document the print
// engine consumes. Rendering is pure: the same request always yields the same
// markup.
package markup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	"github.com/odyssey-erp/odyssey-invoice/internal/view"
)

// MinMarkupLength is the shortest output accepted as a rendered document.
const MinMarkupLength = 100

var (
	// ErrNoRenderer is returned when neither the requested nor the default
	// template is registered.
	ErrNoRenderer = errors.New("markup: no renderer available")
	// ErrMarkupTooShort flags empty or truncated output.
	ErrMarkupTooShort = errors.New("markup: generated markup too short")
)

// Renderer produces document markup for one template.
type Renderer interface {
	ID() invoice.TemplateID
	Name() string
	Render(req invoice.RenderRequest) (string, error)
}

// templateRenderer executes one embedded html/template.
type templateRenderer struct {
	id       invoice.TemplateID
	name     string
	template string
	engine   *view.Engine
}

// NewTemplateRenderer binds template id to the named template in engine.
func NewTemplateRenderer(engine *view.Engine, id invoice.TemplateID, name, template string) (Renderer, error) {
	if !engine.Has(template) {
		return nil, fmt.Errorf("markup: template %q not found", template)
	}
	return &templateRenderer{id: id, name: name, template: template, engine: engine}, nil
}

func (r *templateRenderer) ID() invoice.TemplateID { return r.id }

func (r *templateRenderer) Name() string { return r.name }

func (r *templateRenderer) Render(req invoice.RenderRequest) (string, error) {
	out, err := r.engine.Execute(r.template, NewViewModel(r.id, req))
	if err != nil {
		return "", err
	}
	return out, CheckLength(out)
}

// CheckLength rejects output below MinMarkupLength.
func CheckLength(markup string) error {
	if n := len(strings.TrimSpace(markup)); n < MinMarkupLength {
		return fmt.Errorf("%w: %d bytes", ErrMarkupTooShort, n)
	}
	return nil
}

// builtin lists the templates shipped with the service.
var builtin = []struct {
	id       invoice.TemplateID
	name     string
	template string
}{
	{"1", "Classic", "invoice-classic"},
	{"2", "Modern", "invoice-modern"},
	{"3", "Minimal", "invoice-minimal"},
}
