package markup

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/samber/lo"

	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	"github.com/odyssey-erp/odyssey-invoice/internal/view"
)

// DefaultTemplateID is the canonical fallback template.
const DefaultTemplateID invoice.TemplateID = "1"

// TemplateInfo describes a registered template.
type TemplateInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registry maps template ids to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[invoice.TemplateID]Renderer
	defaultID invoice.TemplateID
	logger    *slog.Logger
}

// NewRegistry constructs an empty registry falling back to defaultID.
func NewRegistry(defaultID invoice.TemplateID, logger *slog.Logger) *Registry {
	if defaultID == "" {
		defaultID = DefaultTemplateID
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		renderers: make(map[invoice.TemplateID]Renderer),
		defaultID: defaultID,
		logger:    logger,
	}
}

// NewBuiltinRegistry registers the embedded templates.
func NewBuiltinRegistry(engine *view.Engine, defaultID invoice.TemplateID, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(defaultID, logger)
	for _, b := range builtin {
		r, err := NewTemplateRenderer(engine, b.id, b.name, b.template)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register adds r. Ids must be unique.
func (r *Registry) Register(renderer Renderer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := renderer.ID()
	if _, exists := r.renderers[id]; exists {
		return fmt.Errorf("markup: template %q already registered", id)
	}
	r.renderers[id] = renderer
	return nil
}

// DefaultID returns the fallback template id.
func (r *Registry) DefaultID() invoice.TemplateID {
	return r.defaultID
}

// Select resolves id, falling back to the default template for unknown ids.
func (r *Registry) Select(id invoice.TemplateID) (Renderer, error) {
	r.mu.RLock()
	renderer, ok := r.renderers[id]
	fallback, hasFallback := r.renderers[r.defaultID]
	r.mu.RUnlock()

	if ok {
		r.logger.Debug("template selected", slog.String("requested", string(id)), slog.String("used", string(id)))
		return renderer, nil
	}
	if !hasFallback {
		r.logger.Error("no renderer available",
			slog.String("requested", string(id)),
			slog.String("default", string(r.defaultID)))
		return nil, fmt.Errorf("%w: requested %q, default %q", ErrNoRenderer, id, r.defaultID)
	}
	r.logger.Info("template fallback",
		slog.String("requested", string(id)),
		slog.String("used", string(r.defaultID)))
	return fallback, nil
}

// List returns the registered templates ordered by id.
func (r *Registry) List() []TemplateInfo {
	r.mu.RLock()
	infos := lo.MapToSlice(r.renderers, func(id invoice.TemplateID, renderer Renderer) TemplateInfo {
		return TemplateInfo{ID: string(id), Name: renderer.Name()}
	})
	r.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return lessID(infos[i].ID, infos[j].ID) })
	return infos
}

// lessID orders numeric ids numerically and everything else lexically.
func lessID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
