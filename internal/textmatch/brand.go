package textmatch

import (
	"regexp"
	"strings"
)

// UnknownBrand is returned when no brand pattern matches.
const UnknownBrand = "Unknown"

type brandPattern struct {
	name string
	re   *regexp.Regexp
}

// Order matters: the first matching brand wins.
var brandPatterns = []brandPattern{
	{"APPLE", regexp.MustCompile(`(?i)\bAPPLE\b|\bIPHONE?\b|\bAPLE\b|\bI ?PHONE\b`)},
	{"SAMSUNG", regexp.MustCompile(`(?i)\bSAMSUNG\b|\bGALAXY\b|\bSM[-\s]`)},
	{"XIAOMI", regexp.MustCompile(`(?i)\bXIAOMI\b|\bREDMI\b|\bPOCO\b|\bMI[-\s]`)},
	{"HUAWEI", regexp.MustCompile(`(?i)\bHUAWEI\b|\bHUAWE\b|\bP[0-9]{2}\b|\bMATE\b`)},
	{"HONOR", regexp.MustCompile(`(?i)\bHONOR\b`)},
	{"OPPO", regexp.MustCompile(`(?i)\bOPPO\b`)},
	{"REALME", regexp.MustCompile(`(?i)\bREALME\b`)},
	{"VIVO", regexp.MustCompile(`(?i)\bVIVO\b`)},
	{"TECNO", regexp.MustCompile(`(?i)\bTECNO\b`)},
	{"NOKIA", regexp.MustCompile(`(?i)\bNOKIA\b`)},
	{"CASPER", regexp.MustCompile(`(?i)\bCASPER\b`)},
	{"GENERAL MOBILE", regexp.MustCompile(`(?i)\bGENERAL\s*MOBILE\b|\bGM\s?[0-9]+\b`)},
	{"INFINIX", regexp.MustCompile(`(?i)\bINFINIX\b`)},
	{"REEDER", regexp.MustCompile(`(?i)\bREEDER\b`)},
}

// Brand returns the canonical brand mentioned in text, or UnknownBrand.
// HUAWEI is never reported for text that also mentions HONOR.
func Brand(text string) string {
	up := Upper(text)
	if up == "" {
		return UnknownBrand
	}
	honor := strings.Contains(up, "HONOR")
	for _, p := range brandPatterns {
		if p.name == "HUAWEI" && honor {
			continue
		}
		if p.re.MatchString(up) {
			return p.name
		}
	}
	return UnknownBrand
}

// KnownBrand reports whether b carries a real brand.
func KnownBrand(b string) bool {
	b = strings.TrimSpace(b)
	return b != "" && !strings.EqualFold(b, UnknownBrand)
}
