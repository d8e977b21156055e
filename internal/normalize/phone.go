// Package normalize canonicalizes human-entered contact data so that the
// matcher can compare values from different sources. The phone rules are
// deliberately lossy: they are a best-effort canonicalizer, not a validator.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
)

// countryCode is prepended to national and bare subscriber numbers.
const countryCode = "+375"

// Phone canonicalizes a raw phone string into a comparable international
// form. It strips everything except digits and a leading "+", rewrites the
// national trunk-prefixed form (80XXXXXXXXX) to +375XXXXXXXXX, and assumes
// a bare 9-digit subscriber number belongs to +375. Inputs that match no
// rule get a "+" prefix and are returned as-is; Phone never fails, worst
// case the result simply matches nothing downstream.
func Phone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(trimmed, "+")

	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if digits == "" {
		return ""
	}
	if hasPlus {
		return "+" + digits
	}
	// National trunk prefix: 80 + 9-digit subscriber number.
	if len(digits) == 11 && strings.HasPrefix(digits, "80") {
		return countryCode + digits[2:]
	}
	// Bare subscriber number.
	if len(digits) == 9 {
		return countryCode + digits
	}
	return "+" + digits
}

// LastDigits returns the last n digits of s, ignoring any non-digit
// characters. If s contains fewer than n digits, all of them are returned.
func LastDigits(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

var nameFolder = cases.Fold()

// Name canonicalizes a contact name for case-insensitive comparison:
// Unicode case folding (so Cyrillic names compare correctly) plus
// whitespace collapsing.
func Name(s string) string {
	folded := nameFolder.String(strings.TrimSpace(s))
	return strings.Join(strings.Fields(folded), " ")
}
