package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-invoice/internal/money"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate constructs a Date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp, keeping the date part.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invoice: invalid date %q", s)
	}
	return DateOf(t), nil
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	if d.IsZero() {
		return d
	}
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invoice: date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TemplateID identifies an invoice template. JSON accepts strings and numbers.
type TemplateID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *TemplateID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TemplateID(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invoice: template id must be a string or integer")
	}
	*id = TemplateID(strconv.FormatInt(n, 10))
	return nil
}

// Discount is the invoice level discount. JSON accepts either a bare amount
// (a fixed discount) or {"type": "PERCENTAGE"|"FIXED_AMOUNT", "value": n}.
type Discount struct {
	Type  money.DiscountType `json:"type"`
	Value decimal.Decimal    `json:"value" validate:"gte=0"`
}

// Money converts the discount for the aggregation engine.
func (d Discount) Money() money.Discount {
	return money.Discount{Type: d.Type, Value: d.Value}
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Discount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*d = Discount{Type: money.DiscountFixedAmount}
		return nil
	case len(data) > 0 && data[0] == '{':
		var raw struct {
			Type  string          `json:"type"`
			Value decimal.Decimal `json:"value"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*d = Discount{Type: money.NormaliseDiscountType(raw.Type), Value: raw.Value}
		return nil
	default:
		var value decimal.Decimal
		if err := value.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("invoice: invalid discount: %w", err)
		}
		*d = Discount{Type: money.DiscountFixedAmount, Value: value}
		return nil
	}
}
