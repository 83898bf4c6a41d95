package app

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-invoice/internal/document"
	"github.com/odyssey-erp/odyssey-invoice/internal/document/markup"
	"github.com/odyssey-erp/odyssey-invoice/internal/document/printer"
	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	"github.com/odyssey-erp/odyssey-invoice/internal/observability"
	"github.com/odyssey-erp/odyssey-invoice/internal/view"
)

// DocumentStack is the assembled generation pipeline shared by the server and
// the worker.
type DocumentStack struct {
	Registry *markup.Registry
	Engine   *printer.Engine
	Service  *document.Service
}

// NewDocumentStack wires templates, the browser engine and the document
// service from cfg. redisClient may be nil, which disables the PDF cache.
func NewDocumentStack(cfg *Config, logger *slog.Logger, metrics *observability.Metrics, redisClient *redis.Client) (*DocumentStack, error) {
	templates, err := view.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("parse invoice templates: %w", err)
	}
	registry, err := markup.NewBuiltinRegistry(templates, invoice.TemplateID(cfg.DefaultTemplate), logger)
	if err != nil {
		return nil, fmt.Errorf("register invoice templates: %w", err)
	}

	engine := printer.New(printer.NewChromeLauncher(logger), printer.Options{
		Launch:             cfg.LaunchConfig(),
		StylesheetURL:      cfg.StylesheetURL,
		ContentLoadTimeout: cfg.ContentLoadTimeout,
		Logger:             logger,
		Hooks: printer.Hooks{
			OnCleanupError: func(err *printer.CleanupError) {
				metrics.CleanupFailed(string(err.Stage))
			},
		},
	})

	var cache *document.Cache
	if redisClient != nil {
		cache = document.NewCache(redisClient, cfg.DocumentCacheTTL)
	}
	service := document.NewService(registry, engine, document.Options{
		Timeout:     cfg.DocumentTimeout,
		Concurrency: cfg.RenderConcurrency,
		Cache:       cache,
		Metrics:     metrics,
		Logger:      logger,
	})
	return &DocumentStack{Registry: registry, Engine: engine, Service: service}, nil
}
