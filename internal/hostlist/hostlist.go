// Package hostlist parses free-form lists of IPv4 / IPv6 / hostname tokens
// used as best-IP candidates.
package hostlist

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	ipv6Pattern      = regexp.MustCompile(`^[a-fA-F0-9:]+$`)
	digitsDotPattern = regexp.MustCompile(`^[\d.]+$`)
	hostnamePattern  = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
)

// Parse splits raw on commas and whitespace and keeps the tokens that are a
// valid IPv4 address, IPv6 literal or hostname. Invalid tokens are dropped.
func Parse(raw string) []string {
	if strings.TrimFunc(raw, IsSpace) == "" {
		return nil
	}

	var hosts []string
	for _, token := range strings.FieldsFunc(raw, IsSeparator) {
		if host, ok := normalizeToken(token); ok {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

// IsSeparator reports whether r separates host tokens: a comma, any Unicode
// space (NBSP, U+3000, \v included) or a byte order mark.
func IsSeparator(r rune) bool {
	return r == ',' || IsSpace(r)
}

// IsSpace matches the whitespace class used by browsers: Unicode spaces plus U+FEFF.
func IsSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

func normalizeToken(token string) (string, bool) {
	t := strings.TrimFunc(token, IsSpace)
	if t == "" {
		return "", false
	}

	if strings.Contains(t, ":") {
		v6 := StripBrackets(t)
		if ipv6Pattern.MatchString(v6) {
			return v6, true
		}
		return "", false
	}

	if digitsDotPattern.MatchString(t) {
		if isIPv4(t) {
			return t, true
		}
		return "", false
	}

	if hostnamePattern.MatchString(t) {
		return t, true
	}
	return "", false
}

func isIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// Unique removes case-insensitive duplicates, keeping the first occurrence
// and its original casing.
func Unique(hosts []string) []string {
	if len(hosts) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(hosts))
	result := make([]string, 0, len(hosts))
	for _, h := range hosts {
		key := strings.ToLower(h)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, h)
	}
	return result
}

// FormatForURL wraps a bare IPv6 literal in brackets so it can be embedded in
// a host:port authority.
func FormatForURL(host string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}
	return host
}

// StripBrackets removes one leading '[' and one trailing ']'.
func StripBrackets(host string) string {
	host = strings.TrimPrefix(host, "[")
	return strings.TrimSuffix(host, "]")
}
