package payment

import "strings"

// NormalizePhone rewrites a customer phone into the local 09XXXXXXXXX form
// the provider expects. It strips everything except digits and '+', then
// folds the +959 / 959 country-code spellings and the bare 9-digit form.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	p := b.String()

	switch {
	case strings.HasPrefix(p, "+959"):
		p = "09" + p[4:]
	case strings.HasPrefix(p, "959"):
		p = "09" + p[3:]
	case len(p) == 9 && !strings.HasPrefix(p, "09"):
		p = "09" + p
	}
	return p
}

// ValidLocalPhone reports whether a normalized phone is acceptable:
// exactly 11 digits starting with 09.
func ValidLocalPhone(p string) bool {
	if len(p) != 11 || !strings.HasPrefix(p, "09") {
		return false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
