// Package documenthttp exposes invoice document generation over HTTP.
package documenthttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-invoice/internal/document"
	"github.com/odyssey-erp/odyssey-invoice/internal/document/markup"
	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	"github.com/odyssey-erp/odyssey-invoice/internal/platform/httpx"
)

// Generator is the document pipeline used by the handler.
type Generator interface {
	Generate(ctx context.Context, req invoice.RenderRequest) (document.Document, error)
	Preview(req invoice.RenderRequest) (document.Preview, error)
}

// TemplateCatalog lists the selectable templates.
type TemplateCatalog interface {
	List() []markup.TemplateInfo
	DefaultID() invoice.TemplateID
}

// InvoiceLoader assembles a render snapshot for a stored invoice.
type InvoiceLoader interface {
	LoadRenderRequest(ctx context.Context, accountID, invoiceID uuid.UUID) (invoice.RenderRequest, error)
}

// EmailQueue schedules invoice emails and returns the task id.
type EmailQueue interface {
	EnqueueInvoiceEmail(ctx context.Context, accountID, invoiceID uuid.UUID, recipient string) (string, error)
}

// Handler serves document endpoints.
type Handler struct {
	logger    *slog.Logger
	generator Generator
	templates TemplateCatalog
	invoices  InvoiceLoader
	emails    EmailQueue
}

// NewHandler constructs the handler. invoices and emails may be nil, in which
// case the stored-invoice routes are not mounted.
func NewHandler(logger *slog.Logger, generator Generator, templates TemplateCatalog, invoices InvoiceLoader, emails EmailQueue) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		logger:    logger,
		generator: generator,
		templates: templates,
		invoices:  invoices,
		emails:    emails,
	}
}

type templatesResponse struct {
	Templates []markup.TemplateInfo `json:"templates"`
	Default   string                `json:"default"`
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, templatesResponse{
		Templates: h.templates.List(),
		Default:   string(h.templates.DefaultID()),
	})
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req invoice.RenderRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondDocument(w, r, req)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req invoice.RenderRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.generator.Preview(req)
	if err != nil {
		h.respondDocumentError(w, r, err)
		return
	}
	w.Header().Set("X-Template-ID", string(p.TemplateID))
	httpx.Inline(w, "text/html; charset=utf-8", []byte(p.HTML))
}

func (h *Handler) downloadInvoice(w http.ResponseWriter, r *http.Request) {
	accountID, invoiceID, ok := h.invoiceScope(w, r)
	if !ok {
		return
	}
	req, err := h.invoices.LoadRenderRequest(r.Context(), accountID, invoiceID)
	if err != nil {
		h.respondLoadError(w, r, err)
		return
	}
	if tpl := strings.TrimSpace(r.URL.Query().Get("template")); tpl != "" {
		req.TemplateID = invoice.TemplateID(tpl)
	}
	h.respondDocument(w, r, req)
}

type emailRequest struct {
	Recipient string `json:"recipient"`
}

type emailResponse struct {
	TaskID string `json:"task_id"`
}

func (h *Handler) emailInvoice(w http.ResponseWriter, r *http.Request) {
	accountID, invoiceID, ok := h.invoiceScope(w, r)
	if !ok {
		return
	}
	var body emailRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	body.Recipient = strings.TrimSpace(body.Recipient)
	if body.Recipient != "" {
		if _, err := mail.ParseAddress(body.Recipient); err != nil {
			httpx.Error(w, http.StatusBadRequest, httpx.ErrorBody{
				Error:   "Invalid request",
				Details: "recipient must be a valid email address",
				Code:    "invalid_request",
			})
			return
		}
	}
	// Fail fast on unknown invoices rather than in the worker.
	if _, err := h.invoices.LoadRenderRequest(r.Context(), accountID, invoiceID); err != nil {
		h.respondLoadError(w, r, err)
		return
	}
	taskID, err := h.emails.EnqueueInvoiceEmail(r.Context(), accountID, invoiceID, body.Recipient)
	if err != nil {
		h.logger.Error("enqueue invoice email", slog.String("invoice_id", invoiceID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, emailResponse{TaskID: taskID})
}

func (h *Handler) respondDocument(w http.ResponseWriter, r *http.Request, req invoice.RenderRequest) {
	doc, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.respondDocumentError(w, r, err)
		return
	}
	w.Header().Set("X-Template-ID", string(doc.TemplateID))
	httpx.Attachment(w, doc.Filename, doc.ContentType, doc.Bytes)
}

func (h *Handler) respondDocumentError(w http.ResponseWriter, r *http.Request, err error) {
	docErr := document.AsError(err)
	status := http.StatusInternalServerError
	switch docErr.Code {
	case document.CodeInvalidRequest:
		status = http.StatusBadRequest
	case document.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("document request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", string(docErr.Code)),
			slog.Any("error", err))
	}
	httpx.Error(w, status, httpx.ErrorBody{
		Error:   docErr.Message,
		Details: docErr.Details,
		Code:    string(docErr.Code),
	})
}

func (h *Handler) respondLoadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, invoice.ErrNotFound) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	h.logger.Error("load invoice", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) invoiceScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	accountID, ok := httpx.AccountFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return uuid.Nil, uuid.Nil, false
	}
	return accountID, invoiceID, true
}
