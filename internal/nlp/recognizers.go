package nlp

import (
	"math/big"
	"net/netip"
	"regexp"
	"strings"
)

// Entity types produced by the built-in recognizers.
const (
	EntityEmail      = "EMAIL_ADDRESS"
	EntityPhone      = "PHONE_NUMBER"
	EntityCreditCard = "CREDIT_CARD"
	EntityUSSSN      = "US_SSN"
	EntityIBAN       = "IBAN_CODE"
	EntityIPAddress  = "IP_ADDRESS"
	EntityURL        = "URL"
)

type scoredPattern struct {
	re    *regexp.Regexp
	score float64
}

// recognizer finds one entity type. validate, when set, confirms a match
// and may replace its score; returning false drops the match.
type recognizer struct {
	entity   string
	patterns []scoredPattern
	validate func(match string, score float64) (float64, bool)
}

func pattern(expr string, score float64) scoredPattern {
	return scoredPattern{re: regexp.MustCompile(expr), score: score}
}

var builtinRecognizers = []recognizer{
	// No leading \b: it is ASCII-only and would cut a local part that
	// starts with a non-ASCII letter.
	{
		entity:   EntityEmail,
		patterns: []scoredPattern{pattern(`[\p{L}\p{N}._%+\-]+@[\p{L}\p{N}.\-]+\.[a-zA-Z]{2,}\b`, 1.0)},
	},
	{
		entity: EntityPhone,
		patterns: []scoredPattern{
			// (123) 456-7890, 123-456-7890, +1 123 456 7890
			pattern(`(?:\+1[-\s]?)?(?:\(\d{3}\)|\b\d{3})[-\s.]?\d{3}[-\s.]?\d{4}\b`, 0.4),
			// International with country code
			pattern(`\+\d{1,3}[-\s]?\d{1,4}[-\s]?\d{3,4}[-\s]?\d{3,4}\b`, 0.4),
		},
	},
	{
		entity: EntityCreditCard,
		patterns: []scoredPattern{
			pattern(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`, 0.3),      // Visa
			pattern(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`, 0.3), // Mastercard
			pattern(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`, 0.3),             // Amex
			pattern(`\b6011[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`, 0.3),        // Discover
		},
		validate: func(m string, _ float64) (float64, bool) {
			return 1.0, luhnValid(digitsOnly(m))
		},
	},
	{
		entity:   EntityUSSSN,
		patterns: []scoredPattern{pattern(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`, 0.5)},
		validate: validSSN,
	},
	{
		entity:   EntityIBAN,
		patterns: []scoredPattern{pattern(`\b[A-Z]{2}\d{2}[-\s]?[A-Z0-9]{4}[-\s]?(?:[A-Z0-9]{4}[-\s]?){1,7}[A-Z0-9]{1,4}\b`, 0.5)},
		validate: func(m string, _ float64) (float64, bool) {
			return 1.0, ibanValid(m)
		},
	},
	{
		entity:   EntityIPAddress,
		patterns: []scoredPattern{pattern(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`, 0.6)},
		validate: func(m string, score float64) (float64, bool) {
			_, err := netip.ParseAddr(m)
			return score, err == nil
		},
	},
	{
		entity:   EntityURL,
		patterns: []scoredPattern{pattern(`\bhttps?://[^\s<>"']+|\bwww\.[^\s<>"']+`, 0.5)},
		validate: func(m string, score float64) (float64, bool) {
			return score, strings.TrimRight(m, ".,;:!?)") != ""
		},
	},
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func luhnValid(digits string) bool {
	if len(digits) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validSSN(m string, score float64) (float64, bool) {
	d := digitsOnly(m)
	if len(d) != 9 {
		return 0, false
	}
	area, group, serial := d[:3], d[3:5], d[5:]
	if area == "000" || area == "666" || area[0] == '9' || group == "00" || serial == "0000" {
		return 0, false
	}
	return score, true
}

// ibanValid applies the ISO 13616 mod-97 check.
func ibanValid(m string) bool {
	s := strings.NewReplacer(" ", "", "-", "").Replace(m)
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	rearranged := s[4:] + s[:4]
	var num strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			num.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			num.WriteString(big.NewInt(int64(r-'A'+10)).String())
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(num.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}
