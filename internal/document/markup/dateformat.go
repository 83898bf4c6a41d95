package markup

import (
	"strings"

	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
)

// DefaultDateLayout is used when the account has no usable date format.
const DefaultDateLayout = "2006-01-02"

// dateTokens maps display pattern tokens to Go layout elements. Longer tokens
// come first so that MMMM wins over MM.
var dateTokens = []struct {
	token  string
	layout string
}{
	{"yyyy", "2006"},
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"dddd", "Monday"},
	{"EEEE", "Monday"},
	{"ddd", "Mon"},
	{"EEE", "Mon"},
	{"yy", "06"},
	{"YY", "06"},
	{"MM", "01"},
	{"dd", "02"},
	{"DD", "02"},
	{"M", "1"},
	{"d", "2"},
	{"D", "2"},
}

// DateLayout converts a display pattern such as "dd/MM/yyyy" or
// "MMM d, yyyy" into a Go time layout. Patterns without a recognised token
// yield DefaultDateLayout.
func DateLayout(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return DefaultDateLayout
	}
	var b strings.Builder
	matched := false
	for i := 0; i < len(pattern); {
		found := false
		for _, t := range dateTokens {
			if strings.HasPrefix(pattern[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				found = true
				matched = true
				break
			}
		}
		if found {
			continue
		}
		c := pattern[i]
		if c >= '0' && c <= '9' {
			// digits would be read back as layout elements
			return DefaultDateLayout
		}
		b.WriteByte(c)
		i++
	}
	if !matched {
		return DefaultDateLayout
	}
	return b.String()
}

// FormatDate renders d with the account pattern. Zero dates render empty.
func FormatDate(d invoice.Date, pattern string) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout(pattern))
}
