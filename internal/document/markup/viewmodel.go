package markup

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
	"github.com/odyssey-erp/odyssey-invoice/internal/money"
)

// Party is an issuer or client block ready for display.
type Party struct {
	Name         string
	Company      string
	Email        string
	Phone        string
	LogoURL      string
	AddressLines []string
}

// ItemRow is one formatted line of the items table.
type ItemRow struct {
	Position    int
	Name        string
	Description string
	Quantity    string
	UnitPrice   string
	Total       string
}

// ViewModel is everything a template needs, already formatted. Templates do
// no arithmetic and no formatting of their own.
type ViewModel struct {
	TemplateID string
	Title      string
	Currency   string

	Issuer Party
	Client Party

	Number      string
	IssueDate   string
	DueDate     string
	Status      string
	StatusClass string
	PaymentTerm string
	Notes       string

	Items []ItemRow

	Subtotal      string
	ShowDiscount  bool
	DiscountLabel string
	Discount      string
	ShowTax       bool
	TaxLabel      string
	Tax           string
	Total         string
	ShowPaid      bool
	PaidTotal     string
	BalanceDue    string
}

// NewViewModel formats req for templateID. Totals are recomputed from the
// items; stored totals are ignored.
func NewViewModel(templateID invoice.TemplateID, req invoice.RenderRequest) ViewModel {
	inv := req.Invoice
	settings := req.CompanySettings
	code := money.NormaliseCurrency(settings.CurrencyCode)
	totals := inv.ComputeTotals(settings.TaxRate)
	amount := func(v decimal.Decimal) string { return money.Format(v, code) }

	vm := ViewModel{
		TemplateID: string(templateID),
		Title:      strings.TrimSpace("Invoice " + inv.Number),
		Currency:   code,
		Issuer: Party{
			Name:         settings.CompanyName,
			Email:        settings.CompanyEmail,
			Phone:        settings.CompanyPhone,
			LogoURL:      strings.TrimSpace(settings.LogoURL),
			AddressLines: settings.Address.Lines(),
		},
		Client: Party{
			Name:         inv.Client.Name,
			Company:      inv.Client.Company,
			Email:        inv.Client.Email,
			Phone:        inv.Client.Phone,
			AddressLines: inv.Client.Address.Lines(),
		},
		Number:      inv.Number,
		IssueDate:   FormatDate(inv.IssueDate, settings.DateFormat),
		DueDate:     FormatDate(inv.DueDate, settings.DateFormat),
		Status:      string(inv.Status),
		StatusClass: statusClass(inv.Status),
		PaymentTerm: paymentTermLabel(inv.PaymentTerm),
		Notes:       strings.TrimSpace(inv.Notes),
		Items: lo.Map(inv.Items, func(it invoice.Item, i int) ItemRow {
			return ItemRow{
				Position:    i + 1,
				Name:        it.Name,
				Description: it.Description,
				Quantity:    money.FormatQuantity(it.Quantity),
				UnitPrice:   amount(it.UnitPrice),
				Total:       amount(it.LineTotal()),
			}
		}),
		Subtotal: amount(totals.Subtotal),
		Total:    amount(totals.Total),
	}
	if vm.Status == "" {
		vm.Status = string(invoice.StatusDraft)
		vm.StatusClass = statusClass(invoice.StatusDraft)
	}

	if totals.DiscountAmount.IsPositive() {
		vm.ShowDiscount = true
		vm.Discount = "-" + amount(totals.DiscountAmount)
		vm.DiscountLabel = "Discount"
		if inv.Discount.Type == money.DiscountPercentage {
			vm.DiscountLabel = "Discount (" + inv.Discount.Value.String() + "%)"
		}
	}
	if totals.TaxAmount.IsPositive() {
		vm.ShowTax = true
		vm.Tax = amount(totals.TaxAmount)
		vm.TaxLabel = "Tax (" + settings.TaxRate.String() + "%)"
	}
	if inv.PaidTotal.IsPositive() {
		vm.ShowPaid = true
		vm.PaidTotal = amount(inv.PaidTotal)
		vm.BalanceDue = amount(inv.BalanceDue(totals.Total))
	}
	return vm
}

func statusClass(s invoice.Status) string {
	switch s {
	case invoice.StatusPaid:
		return "status-paid"
	case invoice.StatusPending:
		return "status-pending"
	case invoice.StatusOverdue:
		return "status-overdue"
	default:
		return "status-draft"
	}
}

func paymentTermLabel(t invoice.PaymentTerm) string {
	if t == "" {
		return ""
	}
	days := t.Days()
	return "Net " + strconv.Itoa(days) + lo.Ternary(days == 1, " day", " days")
}
