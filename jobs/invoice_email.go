package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-invoice/internal/document"
	"github.com/odyssey-erp/odyssey-invoice/internal/document/markup"
	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	jobmetrics "github.com/odyssey-erp/odyssey-invoice/internal/jobs"
	"github.com/odyssey-erp/odyssey-invoice/internal/mailer"
	"github.com/odyssey-erp/odyssey-invoice/internal/money"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// InvoiceLoader assembles render snapshots for stored invoices.
type InvoiceLoader interface {
	LoadRenderRequest(ctx context.Context, accountID, invoiceID uuid.UUID) (invoice.RenderRequest, error)
}

// DocumentGenerator produces the PDF attachment.
type DocumentGenerator interface {
	Generate(ctx context.Context, req invoice.RenderRequest) (document.Document, error)
}

// InvoiceEmailJob renders a stored invoice and mails it to the client.
type InvoiceEmailJob struct {
	Invoices  InvoiceLoader
	Documents DocumentGenerator
	Sender    mailer.Sender
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewInvoiceEmailJob wires dependencies for the email handler.
func NewInvoiceEmailJob(invoices InvoiceLoader, documents DocumentGenerator, sender mailer.Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvoiceEmailJob {
	return &InvoiceEmailJob{
		Invoices:  invoices,
		Documents: documents,
		Sender:    sender,
		Logger:    logger,
		Metrics:   metrics,
	}
}

// Handle processes invoice email tasks. Input that can never succeed is not
// retried; document failures are retried only when the code allows it.
func (j *InvoiceEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invoices == nil || j.Documents == nil || j.Sender == nil {
		return errors.New("invoice email: handler not configured")
	}
	var payload InvoiceEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.AccountID == uuid.Nil || payload.InvoiceID == uuid.Nil {
		return fmt.Errorf("invoice email: missing ids: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskInvoiceEmail)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("account_id", payload.AccountID.String()),
		slog.String("invoice_id", payload.InvoiceID.String()))

	req, err := j.Invoices.LoadRenderRequest(ctx, payload.AccountID, payload.InvoiceID)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			logger.Warn("invoice email skipped: invoice not found")
			resultErr = fmt.Errorf("invoice email: %w: %w", err, asynq.SkipRetry)
			return resultErr
		}
		logger.Error("load invoice", slog.Any("error", err))
		resultErr = err
		return resultErr
	}

	recipient := strings.TrimSpace(payload.Recipient)
	if recipient == "" {
		recipient = strings.TrimSpace(req.Invoice.Client.Email)
	}
	if recipient == "" {
		logger.Warn("invoice email skipped: no recipient")
		resultErr = fmt.Errorf("invoice email: no recipient for %s: %w", req.Invoice.Number, asynq.SkipRetry)
		return resultErr
	}

	doc, err := j.Documents.Generate(ctx, req)
	if err != nil {
		docErr := document.AsError(err)
		logger.Error("generate invoice document", slog.String("code", string(docErr.Code)), slog.Any("error", err))
		if !docErr.Retryable() {
			resultErr = fmt.Errorf("invoice email: %w: %w", docErr, asynq.SkipRetry)
			return resultErr
		}
		resultErr = docErr
		return resultErr
	}

	msg := BuildInvoiceEmail(req, recipient, doc)
	if err := j.Sender.Send(ctx, msg); err != nil {
		if errors.Is(err, mailer.ErrInvalidAddress) {
			resultErr = fmt.Errorf("invoice email: %w: %w", err, asynq.SkipRetry)
			return resultErr
		}
		logger.Error("send invoice email", slog.Any("error", err))
		resultErr = err
		return resultErr
	}

	j.metrics().EmailSent(string(doc.TemplateID))
	logger.Info("invoice emailed",
		slog.String("number", req.Invoice.Number),
		slog.String("template", string(doc.TemplateID)),
		slog.Int("bytes", len(doc.Bytes)))
	return resultErr
}

// BuildInvoiceEmail composes the message carrying doc.
func BuildInvoiceEmail(req invoice.RenderRequest, recipient string, doc document.Document) mailer.Message {
	settings := req.CompanySettings
	inv := req.Invoice
	totals := inv.ComputeTotals(settings.TaxRate)

	from := strings.TrimSpace(settings.CompanyName)
	subject := "Invoice " + inv.Number
	if from != "" {
		subject += " from " + from
	}

	var body strings.Builder
	greeting := strings.TrimSpace(inv.Client.Name)
	if greeting == "" {
		greeting = "there"
	}
	fmt.Fprintf(&body, "Hello %s,\n\n", greeting)
	fmt.Fprintf(&body, "Please find invoice %s attached.\n\n", inv.Number)
	fmt.Fprintf(&body, "Amount due: %s\n", money.Format(inv.BalanceDue(totals.Total), settings.CurrencyCode))
	if !inv.DueDate.IsZero() {
		fmt.Fprintf(&body, "Due date: %s\n", markup.FormatDate(inv.DueDate, settings.DateFormat))
	}
	if from != "" {
		fmt.Fprintf(&body, "\nThank you,\n%s\n", from)
	}

	return mailer.Message{
		To:      recipient,
		Subject: subject,
		Body:    body.String(),
		Attachments: []mailer.Attachment{{
			Filename:    doc.Filename,
			ContentType: doc.ContentType,
			Data:        doc.Bytes,
		}},
	}
}

func (j *InvoiceEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInvoiceEmail))
	}
	return slog.Default().With(slog.String("job", TaskInvoiceEmail))
}

func (j *InvoiceEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
