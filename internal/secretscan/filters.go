package secretscan

import (
	"regexp"
	"sort"
	"strings"
)

// Filter reports whether a candidate secret is a likely false positive.
type Filter func(secret, line string) bool

var filters = map[string]Filter{
	"sequential_string":  isSequentialString,
	"potential_uuid":     isPotentialUUID,
	"templated_secret":   isTemplatedSecret,
	"indirect_reference": isIndirectReference,
	"lock_file_line":     isLockFileLine,
}

// Filters returns the filter names in sorted order.
func Filters() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var sequences = []string{
	strings.Repeat("ABCDEFGHIJKLMNOPQRSTUVWXYZ", 2) + "0123456789",
	strings.Repeat("0123456789", 2) + "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	strings.Repeat("0123456789ABCDEF", 2),
	strings.Repeat("ZYXWVUTSRQPONMLKJIHGFEDCBA", 2),
	strings.Repeat("9876543210", 2),
	strings.Repeat("FEDCBA9876543210", 2),
	`!"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\]^_` + "`abcdefghijklmnopqrstuvwxyz{|}~",
}

func isSequentialString(secret, _ string) bool {
	if len(secret) < 8 {
		return false
	}
	upper := strings.ToUpper(secret)
	for _, seq := range sequences {
		if strings.Contains(seq, upper) || strings.Contains(seq, secret) {
			return true
		}
	}
	return false
}

var uuidRe = regexp.MustCompile(`[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}`)

func isPotentialUUID(secret, _ string) bool {
	return uuidRe.MatchString(secret)
}

func isTemplatedSecret(secret, _ string) bool {
	if strings.Contains(secret, "{{") || strings.Contains(secret, "${") {
		return true
	}
	if len(secret) < 2 {
		return false
	}
	first, last := secret[0], secret[len(secret)-1]
	return (first == '{' && last == '}') || (first == '<' && last == '>')
}

var indirectRe = regexp.MustCompile(`(?i)(?:os\.environ|os\.getenv|getenv\(|process\.env\.|ENV\[|System\.getenv)`)

func isIndirectReference(_, line string) bool {
	return indirectRe.MatchString(line)
}

var lockFileRe = regexp.MustCompile(`(?:^|\s)(?:integrity|resolved|checksum)\s*[:=]?\s*["']?(?:sha\d+-|https?://)`)

func isLockFileLine(_, line string) bool {
	return lockFileRe.MatchString(line)
}
