package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-invoice/internal/money"
	"github.com/odyssey-erp/odyssey-invoice/internal/platform/db"
)

// ErrNotFound indicates the invoice does not exist for the account.
var ErrNotFound = errors.New("invoice: not found")

// Repository loads invoice snapshots from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// LoadRenderRequest assembles the full render snapshot for an invoice owned by
// accountID. All reads happen inside one repeatable-read transaction.
func (r *Repository) LoadRenderRequest(ctx context.Context, accountID, invoiceID uuid.UUID) (RenderRequest, error) {
	var req RenderRequest
	err := db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := loadInvoice(ctx, tx, accountID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Items, err = loadItems(ctx, tx, invoiceID); err != nil {
			return err
		}
		if inv.Payments, err = loadPayments(ctx, tx, invoiceID); err != nil {
			return err
		}
		settings, err := loadSettings(ctx, tx, accountID)
		if err != nil {
			return err
		}
		req = snapshotRequest(inv, settings, r.now())
		return nil
	})
	if err != nil {
		return RenderRequest{}, err
	}
	return req, nil
}

// ReserveInvoiceNumber atomically consumes the next sequence value of the
// account and returns the formatted invoice number.
func (r *Repository) ReserveInvoiceNumber(ctx context.Context, accountID uuid.UUID) (string, error) {
	const query = `
		UPDATE company_settings
		SET next_invoice_number = next_invoice_number + 1, updated_at = NOW()
		WHERE account_id = $1
		RETURNING invoice_prefix, next_invoice_number - 1`
	var prefix string
	var seq int64
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&prefix, &seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("invoice: settings missing for account %s: %w", accountID, ErrNotFound)
		}
		return "", err
	}
	return FormatNumber(prefix, seq), nil
}

// snapshotRequest builds the render request for a stored invoice. Pending
// invoices past their due date are shown as overdue.
func snapshotRequest(inv Invoice, settings CompanySettings, asOf time.Time) RenderRequest {
	inv.Status = inv.EffectiveStatus(asOf)
	return RenderRequest{
		TemplateID:      settings.InvoiceTemplate,
		Invoice:         inv,
		CompanySettings: settings,
	}
}

func loadInvoice(ctx context.Context, tx pgx.Tx, accountID, invoiceID uuid.UUID) (Invoice, error) {
	const query = `
		SELECT i.id::text, i.number, i.issue_date, i.due_date, i.status, i.payment_term,
			COALESCE(i.notes, ''), i.discount_type, i.discount_value::text,
			i.subtotal::text, i.tax::text, i.total::text, i.paid_total::text,
			c.id::text, c.name, c.email, COALESCE(c.company, ''), COALESCE(c.phone, ''),
			COALESCE(c.address, ''), COALESCE(c.city, ''), COALESCE(c.state, ''),
			COALESCE(c.postal_code, ''), COALESCE(c.country, '')
		FROM invoices i
		JOIN clients c ON c.id = i.client_id AND c.account_id = i.account_id
		WHERE i.id = $1 AND i.account_id = $2`

	var inv Invoice
	var status, term, discountType string
	var discountValue, subtotal, tax, total, paidTotal string
	err := tx.QueryRow(ctx, query, invoiceID, accountID).Scan(
		&inv.ID, &inv.Number, &inv.IssueDate.Time, &inv.DueDate.Time, &status, &term,
		&inv.Notes, &discountType, &discountValue,
		&subtotal, &tax, &total, &paidTotal,
		&inv.Client.ID, &inv.Client.Name, &inv.Client.Email, &inv.Client.Company, &inv.Client.Phone,
		&inv.Client.Street, &inv.Client.City, &inv.Client.State,
		&inv.Client.PostalCode, &inv.Client.Country,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	inv.Status = NormaliseStatus(status)
	inv.PaymentTerm = PaymentTerm(term)
	inv.Discount.Type = money.NormaliseDiscountType(discountType)

	var p decimalParser
	inv.Discount.Value = p.parse("discount_value", discountValue)
	inv.Subtotal = p.parse("subtotal", subtotal)
	inv.Tax = p.parse("tax", tax)
	inv.Total = p.parse("total", total)
	inv.PaidTotal = p.parse("paid_total", paidTotal)
	if p.err != nil {
		return Invoice{}, p.err
	}
	return inv, nil
}

func loadItems(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) ([]Item, error) {
	const query = `
		SELECT id::text, name, COALESCE(description, ''), quantity::text, unit_price::text, total::text
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position, id`
	rows, err := tx.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var qty, price, total string
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &qty, &price, &total); err != nil {
			return nil, err
		}
		var p decimalParser
		it.Quantity = p.parse("quantity", qty)
		it.UnitPrice = p.parse("unit_price", price)
		it.Total = p.parse("total", total)
		if p.err != nil {
			return nil, p.err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadPayments(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) ([]Payment, error) {
	const query = `
		SELECT id::text, amount::text, paid_at, COALESCE(method, ''), COALESCE(reference, '')
		FROM payments
		WHERE invoice_id = $1
		ORDER BY paid_at, id`
	rows, err := tx.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var pay Payment
		var amount string
		if err := rows.Scan(&pay.ID, &amount, &pay.PaidAt.Time, &pay.Method, &pay.Reference); err != nil {
			return nil, err
		}
		var p decimalParser
		pay.Amount = p.parse("amount", amount)
		if p.err != nil {
			return nil, p.err
		}
		payments = append(payments, pay)
	}
	return payments, rows.Err()
}

func loadSettings(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (CompanySettings, error) {
	const query = `
		SELECT company_name, COALESCE(company_email, ''), COALESCE(company_phone, ''),
			COALESCE(logo_url, ''), COALESCE(address, ''), COALESCE(city, ''), COALESCE(state, ''),
			COALESCE(postal_code, ''), COALESCE(country, ''), currency_code,
			COALESCE(date_format, ''), tax_rate::text, invoice_prefix, next_invoice_number,
			invoice_template
		FROM company_settings
		WHERE account_id = $1`

	s := DefaultSettings()
	var taxRate, template string
	err := tx.QueryRow(ctx, query, accountID).Scan(
		&s.CompanyName, &s.CompanyEmail, &s.CompanyPhone,
		&s.LogoURL, &s.Street, &s.City, &s.State,
		&s.PostalCode, &s.Country, &s.CurrencyCode,
		&s.DateFormat, &taxRate, &s.InvoicePrefix, &s.NextInvoiceNumber,
		&template,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultSettings(), nil
		}
		return CompanySettings{}, err
	}
	var p decimalParser
	s.TaxRate = p.parse("tax_rate", taxRate)
	s.InvoiceTemplate = TemplateID(template)
	return s, p.err
}

// decimalParser keeps the first parse failure so scans stay linear.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(column, raw string) decimal.Decimal {
	v, err := decimal.NewFromString(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invoice: parse %s: %w", column, err)
	}
	return v
}
