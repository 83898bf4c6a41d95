package documenthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-invoice/internal/platform/httpx"
)

// RenderLimit caps PDF requests per caller per minute.
const RenderLimit = 30

// MountRoutes registers document endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(RenderLimit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, http.StatusTooManyRequests, httpx.ErrorBody{
				Error: http.StatusText(http.StatusTooManyRequests),
				Code:  "rate_limited",
			})
		}),
	)

	r.Get("/templates", h.listTemplates)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/documents/invoice", h.generate)
		gr.Post("/documents/invoice/preview", h.preview)
	})
	if h.invoices == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(httpx.RequireAccount)
		gr.Use(limiter)
		gr.Get("/invoices/{invoiceID}/pdf", h.downloadInvoice)
		if h.emails != nil {
			gr.Post("/invoices/{invoiceID}/email", h.emailInvoice)
		}
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if id, ok := httpx.AccountFromContext(r.Context()); ok {
		return "account:" + id.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
