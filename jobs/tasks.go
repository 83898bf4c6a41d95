package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceEmail renders a stored invoice and emails it as a PDF attachment.
	TaskInvoiceEmail = "invoice:email"
)

// InvoiceEmailPayload identifies the invoice to deliver. An empty Recipient
// sends to the client email on file.
type InvoiceEmailPayload struct {
	AccountID uuid.UUID `json:"account_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	Recipient string    `json:"recipient,omitempty"`
}

// NewInvoiceEmailTask constructs an Asynq task.
func NewInvoiceEmailTask(payload InvoiceEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceEmail, data, asynq.MaxRetry(5)), nil
}
