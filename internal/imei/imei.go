// Package imei finds and validates 15-digit device identifiers in free text.
package imei

import (
	"regexp"
	"sort"
	"strings"
)

// Length is the number of digits in an IMEI.
const Length = 15

var (
	digitRun      = regexp.MustCompile(`[0-9]+`)
	documentNoPat = regexp.MustCompile(`\bE(?:AR|FR)[0-9]{13}\b`)
)

// Validate reports whether s is exactly 15 ASCII digits and passes the
// Luhn check. Digits at odd zero-based positions are doubled.
func Validate(s string) bool {
	if len(s) != Length {
		return false
	}
	sum := 0
	for i := 0; i < Length; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// Extract returns the sorted, deduplicated set of valid identifiers in
// text. A candidate is a run of exactly 15 digits not adjacent to any
// other digit, so longer digit runs never yield identifiers.
func Extract(text string) []string {
	seen := make(map[string]struct{})
	for _, run := range digitRun.FindAllString(text, -1) {
		if len(run) == Length && Validate(run) {
			seen[run] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// First returns the first valid identifier in text order, or "".
func First(text string) string {
	for _, run := range digitRun.FindAllString(text, -1) {
		if len(run) == Length && Validate(run) {
			return run
		}
	}
	return ""
}

// DocumentNumbers returns e-invoice and e-archive document numbers
// (EFR/EAR followed by 13 digits) in first-seen order, upper-cased.
func DocumentNumbers(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range documentNoPat.FindAllString(strings.ToUpper(text), -1) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// All returns every valid identifier in text in first-seen order without
// duplicates. Use it where input order carries meaning, e.g. target lists.
func All(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, run := range digitRun.FindAllString(text, -1) {
		if len(run) != Length || !Validate(run) {
			continue
		}
		if _, ok := seen[run]; ok {
			continue
		}
		seen[run] = struct{}{}
		out = append(out, run)
	}
	return out
}
