package documenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-invoice/internal/document"
	"github.com/odyssey-erp/odyssey-invoice/internal/document/markup"
	"github.com/odyssey-erp/odyssey-invoice/internal/document/printer"
	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	"github.com/odyssey-erp/odyssey-invoice/internal/platform/httpx"
)

type stubGenerator struct {
	err  error
	last invoice.RenderRequest
}

func (s *stubGenerator) Generate(ctx context.Context, req invoice.RenderRequest) (document.Document, error) {
	s.last = req
	if s.err != nil {
		return document.Document{}, document.AsError(s.err)
	}
	return document.Document{
		Filename:    req.Invoice.Filename(),
		ContentType: document.ContentTypePDF,
		Bytes:       append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("x"), 600)...),
		TemplateID:  req.EffectiveTemplate(),
	}, nil
}

func (s *stubGenerator) Preview(req invoice.RenderRequest) (document.Preview, error) {
	s.last = req
	if s.err != nil {
		return document.Preview{}, document.AsError(s.err)
	}
	return document.Preview{TemplateID: req.EffectiveTemplate(), HTML: "<!DOCTYPE html><html><body>" + req.Invoice.Number + "</body></html>"}, nil
}

type stubCatalog struct{}

func (stubCatalog) List() []markup.TemplateInfo {
	return []markup.TemplateInfo{{ID: "1", Name: "Classic"}, {ID: "2", Name: "Modern"}, {ID: "3", Name: "Minimal"}}
}

func (stubCatalog) DefaultID() invoice.TemplateID { return "1" }

type stubLoader struct {
	req     invoice.RenderRequest
	err     error
	account uuid.UUID
}

func (s *stubLoader) LoadRenderRequest(ctx context.Context, accountID, invoiceID uuid.UUID) (invoice.RenderRequest, error) {
	s.account = accountID
	return s.req, s.err
}

type stubQueue struct {
	recipient string
	err       error
}

func (s *stubQueue) EnqueueInvoiceEmail(ctx context.Context, accountID, invoiceID uuid.UUID, recipient string) (string, error) {
	s.recipient = recipient
	if s.err != nil {
		return "", s.err
	}
	return "task-1", nil
}

const requestBody = `{
	"templateId": "2",
	"invoice": {
		"number": "INV-0042",
		"issueDate": "2024-01-15",
		"dueDate": "2024-02-14",
		"status": "PENDING",
		"items": [{"name": "Design", "quantity": 1, "unitPrice": 100}],
		"client": {"name": "Acme Corp"}
	},
	"companySettings": {"companyName": "Odyssey Labs", "currencyCode": "USD", "taxRate": 0}
}`

func newRouter(gen *stubGenerator, loader *stubLoader, queue *stubQueue) http.Handler {
	r := chi.NewRouter()
	var l InvoiceLoader
	if loader != nil {
		l = loader
	}
	var q EmailQueue
	if queue != nil {
		q = queue
	}
	NewHandler(nil, gen, stubCatalog{}, l, q).MountRoutes(r)
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListTemplates(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubGenerator{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/templates", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body templatesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Templates, 3)
	assert.Equal(t, "1", body.Default)
}

func TestGenerateReturnsAttachment(t *testing.T) {
	gen := &stubGenerator{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/documents/invoice", strings.NewReader(requestBody))
	newRouter(gen, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="invoice-INV-0042.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", rec.Header().Get("X-Template-ID"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	assert.Equal(t, invoice.TemplateID("2"), gen.last.TemplateID)
}

func TestGenerateErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", fmt.Errorf("%w: invoice.number is required", invoice.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"template", markup.ErrNoRenderer, http.StatusInternalServerError, "template_resolution"},
		{"launch", &printer.StageError{Stage: printer.StageLaunch, Err: printer.ErrBrowserLaunch, Cause: errors.New("no chromium")}, http.StatusInternalServerError, "browser_launch"},
		{"print", &printer.StageError{Stage: printer.StagePrint, Err: printer.ErrPrintOperation, Cause: errors.New("boom")}, http.StatusInternalServerError, "print_operation"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/documents/invoice", strings.NewReader(requestBody))
			newRouter(&stubGenerator{err: tc.err}, nil, nil).ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.Details)
		})
	}
}

func TestGenerateRejectsMalformedJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/documents/invoice", strings.NewReader(`{"invoice":`))
	newRouter(&stubGenerator{}, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestPreviewReturnsMarkup(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/documents/invoice/preview", strings.NewReader(requestBody))
	newRouter(&stubGenerator{}, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "INV-0042")
}

func storedRequest() invoice.RenderRequest {
	var req invoice.RenderRequest
	if err := json.Unmarshal([]byte(requestBody), &req); err != nil {
		panic(err)
	}
	req.TemplateID = ""
	req.CompanySettings.InvoiceTemplate = "3"
	return req
}

func TestDownloadInvoice(t *testing.T) {
	account := uuid.New()
	path := "/invoices/" + uuid.NewString() + "/pdf"

	t.Run("requires account", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(&stubGenerator{}, &stubLoader{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(&stubGenerator{}, &stubLoader{err: invoice.ErrNotFound}, nil).ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeError(t, rec).Code)
	})

	t.Run("stored template", func(t *testing.T) {
		gen := &stubGenerator{}
		loader := &stubLoader{req: storedRequest()}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(gen, loader, nil).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-Template-ID"))
		assert.Equal(t, account, loader.account)
	})

	t.Run("template override", func(t *testing.T) {
		gen := &stubGenerator{}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path+"?template=2", nil)
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(gen, &stubLoader{req: storedRequest()}, nil).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, invoice.TemplateID("2"), gen.last.EffectiveTemplate())
	})

	t.Run("bad id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/invoices/42/pdf", nil)
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(&stubGenerator{}, &stubLoader{}, nil).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestEmailInvoice(t *testing.T) {
	account := uuid.New()
	path := "/invoices/" + uuid.NewString() + "/email"

	t.Run("accepted", func(t *testing.T) {
		queue := &stubQueue{}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"recipient":"ap@acme.test"}`))
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(&stubGenerator{}, &stubLoader{req: storedRequest()}, queue).ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var body emailResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "task-1", body.TaskID)
		assert.Equal(t, "ap@acme.test", queue.recipient)
	})

	t.Run("empty body", func(t *testing.T) {
		queue := &stubQueue{}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(&stubGenerator{}, &stubLoader{req: storedRequest()}, queue).ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, queue.recipient)
	})

	t.Run("bad recipient", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"recipient":"nope"}`))
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(&stubGenerator{}, &stubLoader{req: storedRequest()}, &stubQueue{}).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(&stubGenerator{}, &stubLoader{err: invoice.ErrNotFound}, &stubQueue{}).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("queue failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(httpx.AccountHeader, account.String())
		newRouter(&stubGenerator{}, &stubLoader{req: storedRequest()}, &stubQueue{err: errors.New("redis down")}).ServeHTTP(rec, req)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal", decodeError(t, rec).Code)
	})
}
