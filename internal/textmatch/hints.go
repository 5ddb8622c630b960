package textmatch

import (
	"regexp"
	"strings"
)

var (
	refurbishedPat = regexp.MustCompile(`\b(YENILENMIS|REFURB[A-Z]*|RENEWED)\b`)
	secondHandPat  = regexp.MustCompile(`\b(2\.?\s*EL|IKINCI\s*EL|SECOND[\s-]*HAND)\b`)
)

// renewalService is the service line used on refurbishment invoices that
// carry no device identifier.
const renewalService = "CEP TELEFONU YENILEME HIZMETI"

// HasRefurbishedHint reports refurbished or renewed vocabulary in text.
func HasRefurbishedHint(text string) bool {
	return refurbishedPat.MatchString(Upper(text))
}

// HasSecondHandHint reports second-hand vocabulary in text.
func HasSecondHandHint(text string) bool {
	return secondHandPat.MatchString(Upper(text))
}

// MentionsRenewalService reports a phone renewal service line.
func MentionsRenewalService(text string) bool {
	return strings.Contains(Upper(text), renewalService)
}
