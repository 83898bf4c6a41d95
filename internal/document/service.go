// Package document orchestrates invoice document generation: template
// selection, markup rendering and printing, with one outcome per call.
package document

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-invoice/internal/document/markup"
	"github.com/odyssey-erp/odyssey-invoice/internal/document/printer"
	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	"github.com/odyssey-erp/odyssey-invoice/internal/observability"
)

const (
	// ContentTypePDF is the content type of every generated document.
	ContentTypePDF = "application/pdf"
	// DefaultTimeout bounds a whole generation, queueing included.
	DefaultTimeout = 60 * time.Second
	// DefaultConcurrency is the number of browsers allowed to run at once.
	DefaultConcurrency = 4
)

var driftTolerance = decimal.RequireFromString("0.01")

// Selector resolves template ids to renderers.
type Selector interface {
	Select(id invoice.TemplateID) (markup.Renderer, error)
}

// Printer turns markup into PDF bytes.
type Printer interface {
	Print(ctx context.Context, html string) ([]byte, error)
}

// Document is a generated PDF and its metadata.
type Document struct {
	Filename    string
	ContentType string
	Bytes       []byte
	TemplateID  invoice.TemplateID
	Cached      bool
}

// Preview is rendered markup without printing.
type Preview struct {
	TemplateID invoice.TemplateID
	HTML       string
}

// Options configures a Service.
type Options struct {
	Timeout     time.Duration
	Concurrency int64
	Cache       *Cache
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service generates invoice documents. It keeps no state between calls
// beyond the concurrency gate.
type Service struct {
	selector Selector
	printer  Printer
	timeout  time.Duration
	gate     *semaphore.Weighted
	flights  singleflight.Group
	cache    *Cache
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewService wires the pipeline.
func NewService(selector Selector, p Printer, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		selector: selector,
		printer:  p,
		timeout:  opts.Timeout,
		gate:     semaphore.NewWeighted(opts.Concurrency),
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Generate renders req to a PDF. A failure is always an *Error.
func (s *Service) Generate(ctx context.Context, req invoice.RenderRequest) (Document, error) {
	start := time.Now()
	logger := s.logger.With(
		slog.String("render_id", uuid.NewString()),
		slog.String("invoice", req.Invoice.Number))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	renderer, html, err := s.render(req, logger)
	if err != nil {
		return Document{}, s.failed(logger, string(req.EffectiveTemplate()), start, err)
	}
	templateID := renderer.ID()

	pdf, cached, err := s.print(ctx, templateID, html, logger)
	if err != nil {
		return Document{}, s.failed(logger, string(templateID), start, err)
	}

	s.metrics.ObserveDocument(string(templateID), "ok", time.Since(start), len(pdf))
	logger.Info("document generated",
		slog.String("template", string(templateID)),
		slog.Int("bytes", len(pdf)),
		slog.Bool("cached", cached),
		slog.Duration("elapsed", time.Since(start)))
	return Document{
		Filename:    req.Invoice.Filename(),
		ContentType: ContentTypePDF,
		Bytes:       pdf,
		TemplateID:  templateID,
		Cached:      cached,
	}, nil
}

// Preview validates req and returns the markup Generate would print.
func (s *Service) Preview(req invoice.RenderRequest) (Preview, error) {
	renderer, html, err := s.render(req, s.logger)
	if err != nil {
		return Preview{}, AsError(err)
	}
	return Preview{TemplateID: renderer.ID(), HTML: html}, nil
}

func (s *Service) render(req invoice.RenderRequest, logger *slog.Logger) (markup.Renderer, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", err
	}
	renderer, err := s.selector.Select(req.EffectiveTemplate())
	if err != nil {
		return nil, "", err
	}
	s.checkDrift(req, logger)

	html, err := renderer.Render(req)
	if err != nil {
		if errors.Is(err, markup.ErrMarkupTooShort) {
			return nil, "", err
		}
		return nil, "", &Error{Code: CodeMarkupGeneration, Message: "Failed to generate invoice markup", Details: err.Error(), Err: err}
	}
	if err := markup.CheckLength(html); err != nil {
		return nil, "", err
	}
	return renderer, html, nil
}

func (s *Service) print(ctx context.Context, templateID invoice.TemplateID, html string, logger *slog.Logger) ([]byte, bool, error) {
	key := s.cache.Key(string(templateID), html)
	if pdf, ok, err := s.cache.Get(ctx, key); err != nil {
		logger.Warn("document cache read failed", slog.Any("error", err))
	} else if s.cache != nil {
		s.metrics.CacheLookup(ok)
		if ok {
			return pdf, true, nil
		}
	}

	pdf, err := s.printShared(ctx, key, html)
	if err != nil {
		return nil, false, err
	}

	if err := s.cache.Set(ctx, key, pdf); err != nil {
		logger.Warn("document cache write failed", slog.Any("error", err))
	}
	return pdf, false, nil
}

// printShared prints html once for all concurrent callers with the same key.
// Every caller waits under its own context.
func (s *Service) printShared(ctx context.Context, key, html string) ([]byte, error) {
	ch := s.flights.DoChan(key, func() (any, error) {
		return s.printGated(ctx, html)
	})
	select {
	case <-ctx.Done():
		return nil, &printer.StageError{Stage: printer.StageLaunch, Err: printer.ErrAborted, Cause: ctx.Err()}
	case res := <-ch:
		if res.Err == nil {
			return res.Val.([]byte), nil
		}
		if res.Shared && ctx.Err() == nil && errors.Is(res.Err, printer.ErrAborted) {
			// the leader's caller went away; this caller is still waiting
			return s.printGated(ctx, html)
		}
		return nil, res.Err
	}
}

func (s *Service) printGated(ctx context.Context, html string) ([]byte, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, &printer.StageError{Stage: printer.StageLaunch, Err: printer.ErrAborted, Cause: err}
	}
	defer s.gate.Release(1)
	done := s.metrics.RenderStarted()
	defer done()
	return s.printer.Print(ctx, html)
}

func (s *Service) failed(logger *slog.Logger, templateID string, start time.Time, err error) error {
	docErr := AsError(err)
	s.metrics.ObserveDocument(templateID, string(docErr.Code), time.Since(start), 0)
	level := slog.LevelWarn
	if docErr.Systemic() {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "document generation failed",
		slog.String("code", string(docErr.Code)),
		slog.String("template", templateID),
		slog.Bool("systemic", docErr.Systemic()),
		slog.Any("error", err))
	return docErr
}

// checkDrift warns when stored totals disagree with the recomputed ones. The
// document always shows the recomputed totals.
func (s *Service) checkDrift(req invoice.RenderRequest, logger *slog.Logger) {
	inv := req.Invoice
	totals := inv.ComputeTotals(req.CompanySettings.TaxRate)
	stored := []struct {
		name     string
		stored   decimal.Decimal
		computed decimal.Decimal
	}{
		{"subtotal", inv.Subtotal, totals.Subtotal},
		{"tax", inv.Tax, totals.TaxAmount},
		{"total", inv.Total, totals.Total},
	}
	for _, f := range stored {
		if f.stored.IsZero() {
			continue
		}
		if f.stored.Sub(f.computed).Abs().GreaterThan(driftTolerance) {
			logger.Warn("stored invoice totals drift",
				slog.String("field", f.name),
				slog.String("stored", f.stored.String()),
				slog.String("computed", f.computed.String()))
		}
	}
}
