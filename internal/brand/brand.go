// Package brand derives brand names from domains and URLs.
package brand

import (
	"net"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
)

// Domain returns the lowercased host of input without scheme, credentials,
// port, path or a leading "www.".
func Domain(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "//")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}

// Extract returns the label directly left of the public suffix, so
// "https://www.shop.example.co.uk/x" yields "example". IP literals and single
// labels are returned unchanged.
func Extract(input string) string {
	host := Domain(input)
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	if suffix == "" || suffix == host {
		return host
	}
	rest := strings.TrimSuffix(host, "."+suffix)
	if i := strings.LastIndex(rest, "."); i >= 0 {
		rest = rest[i+1:]
	}
	return rest
}

// Fold keeps only letters and digits, lowercased.
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matches reports whether name refers to brand. Short brands must match
// exactly; brands of four or more characters may be contained in name.
func Matches(name, brand string) bool {
	n, b := Fold(name), Fold(brand)
	if n == "" || b == "" {
		return false
	}
	if n == b {
		return true
	}
	return len([]rune(b)) >= 4 && strings.Contains(n, b)
}
