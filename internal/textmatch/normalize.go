// Package textmatch normalizes Turkish invoice text and matches brand and
// condition vocabulary against it.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dotless maps the letters that have no canonical decomposition.
var dotless = runes.Map(func(r rune) rune {
	switch r {
	case 'ı':
		return 'i'
	case 'İ':
		return 'I'
	}
	return r
})

// fold strips combining marks so Ç, Ğ, Ö, Ş and Ü fall back to their ASCII base.
func fold(s string) string {
	t := transform.Chain(dotless, norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Upper trims, upper-cases with Turkish rules and transliterates s to its
// ASCII base letters. It is idempotent.
func Upper(s string) string {
	return fold(cases.Upper(language.Turkish).String(strings.TrimSpace(s)))
}

// Lower is the lower-case counterpart of Upper, used for header matching.
func Lower(s string) string {
	return fold(cases.Lower(language.Turkish).String(strings.TrimSpace(s)))
}

// HeaderKey reduces a spreadsheet header cell to lower-case ASCII letters,
// digits, slashes and single spaces.
func HeaderKey(s string) string {
	var b strings.Builder
	space := false
	for _, r := range Lower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '/':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
