// Package invoice holds the invoice aggregate as the document pipeline sees
// it: the invoice, its client and items, and the issuing account's settings.
package invoice

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-invoice/internal/money"
)

// Status enumerates invoice statuses.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusOverdue Status = "OVERDUE"
)

// NormaliseStatus uppercases and trims the provided status string.
func NormaliseStatus(v string) Status {
	v = strings.TrimSpace(strings.ToUpper(v))
	switch Status(v) {
	case StatusDraft, StatusPending, StatusPaid, StatusOverdue:
		return Status(v)
	default:
		return StatusDraft
	}
}

// PaymentTerm enumerates supported payment terms.
type PaymentTerm string

const (
	TermNet1  PaymentTerm = "NET1"
	TermNet7  PaymentTerm = "NET7"
	TermNet14 PaymentTerm = "NET14"
	TermNet30 PaymentTerm = "NET30"
)

// Days returns the number of days granted by the term. Unknown terms grant 30.
func (t PaymentTerm) Days() int {
	switch t {
	case TermNet1:
		return 1
	case TermNet7:
		return 7
	case TermNet14:
		return 14
	default:
		return 30
	}
}

// DueDateFor computes the due date for an invoice issued on issue.
func (t PaymentTerm) DueDateFor(issue Date) Date {
	return issue.AddDays(t.Days())
}

// NumberWidth is the zero padding applied to invoice sequence numbers.
const NumberWidth = 4

// FormatNumber builds an invoice number from the account prefix and sequence.
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%0*d", prefix, NumberWidth, seq)
}

// Address is the postal address shared by clients and issuing accounts.
type Address struct {
	Street     string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Lines returns the non-empty address lines in display order.
func (a Address) Lines() []string {
	var lines []string
	if s := strings.TrimSpace(a.Street); s != "" {
		lines = append(lines, s)
	}
	locality := strings.TrimSpace(strings.Join(nonEmpty(a.City, a.State, a.PostalCode), ", "))
	if locality != "" {
		lines = append(lines, locality)
	}
	if c := strings.TrimSpace(a.Country); c != "" {
		lines = append(lines, c)
	}
	return lines
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Client is the billed party.
type Client struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address
}

// Item is a single invoice line.
type Item struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Total       decimal.Decimal `json:"total" validate:"gte=0"`
}

// LineTotal recomputes the line total; the stored Total is not trusted.
func (it Item) LineTotal() decimal.Decimal {
	return money.LineTotal(it.Quantity, it.UnitPrice)
}

// Payment records money received against an invoice.
type Payment struct {
	ID        string          `json:"id,omitempty"`
	Amount    decimal.Decimal `json:"amount" validate:"gte=0"`
	PaidAt    Date            `json:"paidAt"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"`
}

// Invoice is the full invoice snapshot consumed by the renderers.
type Invoice struct {
	ID          string          `json:"id,omitempty"`
	Number      string          `json:"number" validate:"required,max=64"`
	IssueDate   Date            `json:"issueDate"`
	DueDate     Date            `json:"dueDate"`
	Status      Status          `json:"status" validate:"omitempty,oneof=DRAFT PENDING PAID OVERDUE"`
	PaymentTerm PaymentTerm     `json:"paymentTerm,omitempty" validate:"omitempty,oneof=NET1 NET7 NET14 NET30"`
	Notes       string          `json:"notes,omitempty"`
	Discount    Discount        `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal" validate:"gte=0"`
	Tax         decimal.Decimal `json:"tax" validate:"gte=0"`
	Total       decimal.Decimal `json:"total" validate:"gte=0"`
	PaidTotal   decimal.Decimal `json:"paidTotal" validate:"gte=0"`
	Items       []Item          `json:"items" validate:"dive"`
	Client      Client          `json:"client"`
	Payments    []Payment       `json:"payments,omitempty" validate:"dive"`
}

// Lines adapts the items for the aggregation engine.
func (inv Invoice) Lines() []money.Line {
	lines := make([]money.Line, len(inv.Items))
	for i, it := range inv.Items {
		lines[i] = money.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return lines
}

// ComputeTotals recomputes the invoice totals with the account tax rate.
func (inv Invoice) ComputeTotals(taxRate decimal.Decimal) money.Totals {
	return money.Compute(inv.Lines(), inv.Discount.Money(), taxRate)
}

// BalanceDue returns total minus the amount already paid, never below zero.
func (inv Invoice) BalanceDue(total decimal.Decimal) decimal.Decimal {
	return decimal.Max(total.Sub(inv.PaidTotal), decimal.Zero).Round(2)
}

// EffectiveStatus reports OVERDUE for pending invoices whose due date is
// before asOf. Other statuses are returned unchanged.
func (inv Invoice) EffectiveStatus(asOf time.Time) Status {
	if inv.Status != StatusPending || inv.DueDate.IsZero() {
		return inv.Status
	}
	if inv.DueDate.Before(DateOf(asOf)) {
		return StatusOverdue
	}
	return inv.Status
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename suggests the attachment name for the rendered document.
func (inv Invoice) Filename() string {
	number := strings.Trim(unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(inv.Number), "-"), "-.")
	if number == "" {
		return "invoice.pdf"
	}
	return "invoice-" + number + ".pdf"
}

// CompanySettings is the issuing account's document configuration.
type CompanySettings struct {
	CompanyName       string          `json:"companyName,omitempty" validate:"max=200"`
	CompanyEmail      string          `json:"companyEmail,omitempty" validate:"omitempty,email"`
	CompanyPhone      string          `json:"companyPhone,omitempty"`
	LogoURL           string          `json:"logoUrl,omitempty"`
	CurrencyCode      string          `json:"currencyCode,omitempty" validate:"omitempty,len=3,alpha"`
	DateFormat        string          `json:"dateFormat,omitempty" validate:"max=32"`
	TaxRate           decimal.Decimal `json:"taxRate" validate:"gte=0,lte=100"`
	InvoicePrefix     string          `json:"invoicePrefix,omitempty" validate:"max=16"`
	NextInvoiceNumber int64           `json:"nextInvoiceNumber,omitempty" validate:"gte=0"`
	InvoiceTemplate   TemplateID      `json:"invoiceTemplate,omitempty"`
	Address
}

// DefaultSettings is used for accounts that never saved their settings.
func DefaultSettings() CompanySettings {
	return CompanySettings{
		CurrencyCode:      money.DefaultCurrency,
		InvoicePrefix:     "INV-",
		NextInvoiceNumber: 1,
		InvoiceTemplate:   "1",
	}
}

// RenderRequest is the self-contained snapshot handed to the document service.
type RenderRequest struct {
	TemplateID      TemplateID      `json:"templateId"`
	Invoice         Invoice         `json:"invoice"`
	CompanySettings CompanySettings `json:"companySettings"`
}

// EffectiveTemplate returns the request template, then the account template.
func (r RenderRequest) EffectiveTemplate() TemplateID {
	if r.TemplateID != "" {
		return r.TemplateID
	}
	return r.CompanySettings.InvoiceTemplate
}
