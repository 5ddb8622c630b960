package voucher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses Turkish and German formatted amounts (dot thousands,
// comma decimals) as well as plain dotted decimals. Currency markers are
// ignored.
func ParseAmount(amountStr string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(amountStr)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	// Handle negative amounts
	isNegative := strings.HasPrefix(cleaned, "-")
	if isNegative {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "-"))
	}

	// Remove currency symbols and spaces
	for _, marker := range []string{" ", "\u00a0", "₺", "TL", "TRY", "€", "EUR", "USD"} {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}

	// "1.234,56" => 1234.56, "1234,56" => 1234.56, "1,234.56" => 1234.56
	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma:
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case strings.Count(cleaned, ".") > 1:
		// "1.234.567" is a thousands-grouped integer
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse amount: %s (cleaned: %s)", amountStr, cleaned)
	}
	if isNegative {
		amount = amount.Neg()
	}
	return amount, nil
}

// NormalizeAmount renders a parseable amount with two decimals and returns
// anything else unchanged, so spreadsheet text is never lost.
func NormalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	d, err := ParseAmount(s)
	if err != nil {
		return s
	}
	return d.StringFixed(2)
}
