// Package email validates email addresses and derives presentation values from them.
package email

import (
	"net/mail"
	"strings"
	"unicode"
)

// IsValid reports whether address is a bare addr-spec ("user@example.com") whose
// domain has at least one dot. Display-name forms such as "Jane <jane@x.io>" are
// rejected.
func IsValid(address string) bool {
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Name != "" || parsed.Address != address {
		return false
	}
	domain := address[strings.LastIndexByte(address, '@')+1:]
	return strings.Contains(strings.Trim(domain, "."), ".")
}

// DisplayName builds a readable name from the local part of an address:
// "jane.doe+home@example.com" becomes "Jane Doe". Tags after '+' are dropped.
// Returns "" when nothing usable remains.
func DisplayName(address string) string {
	local := strings.TrimSpace(address)
	if at := strings.LastIndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
