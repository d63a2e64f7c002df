package utils

import "strings"

// CanonicalDomain returns a host name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot and no port suffix
func CanonicalDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") {
		// bracketed IPv6 literal, possibly with a port suffix
		if j := strings.IndexByte(host, ']'); j >= 0 {
			host = host[1:j]
		}
	} else if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[:i], ":") {
		// strip a port suffix, but leave bare IPv6 literals alone
		host = host[:i]
	}
	for strings.HasSuffix(host, ".") {
		host = strings.TrimSuffix(host, ".")
	}
	return host
}

// DomainMatches reports whether host equals blocked or is a subdomain of it
// (dot-suffix match). Both arguments must already be canonical.
func DomainMatches(host, blocked string) bool {
	if host == blocked {
		return true
	}
	return strings.HasSuffix(host, "."+blocked)
}
