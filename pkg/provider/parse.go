package provider

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// amountRE matches the first decimal number in a string, tolerating
// thousands separators. Currency symbols and labels around it are ignored.
var amountRE = regexp.MustCompile(`-?\d+(?:,\d{3})*(?:\.\d+)?`)

// ParseAmount extracts a monetary amount from free-form text such as
// "$1,234.56" or "Amount due: 84.20 USD".
func ParseAmount(text string) (decimal.Decimal, error) {
	match := amountRE.FindString(text)
	if match == "" {
		return decimal.Zero, fmt.Errorf("no amount in %q", text)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", match, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", match)
	}
	return d, nil
}

// dueDateLayouts are the formats billers actually use, most specific first.
var dueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
}

// ParseDueDate parses a due date from the formats seen across sources.
// No timezone normalization is applied beyond what the source reports.
func ParseDueDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized due date %q", text)
}

var last4RE = regexp.MustCompile(`(\d{4})\s*$`)

// ParseAccountLast4 extracts the trailing four digits from an account
// label like "Checking ****1234". Returns "" when none are present.
func ParseAccountLast4(text string) string {
	match := last4RE.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return ""
	}
	return match[1]
}
