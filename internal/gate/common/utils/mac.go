package utils

import "strings"

// CanonicalMAC returns a MAC address in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - Colon-separated octets regardless of the input separator (colon, dash,
//   or Cisco-style dots)
//
// Inputs that do not contain twelve hex characters are returned lowercased
// and trimmed but otherwise untouched; validation belongs to the caller.
func CanonicalMAC(mac string) string {
	mac = strings.ToLower(strings.TrimSpace(mac))
	hex := make([]byte, 0, 12)
	for i := 0; i < len(mac); i++ {
		c := mac[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
			hex = append(hex, c)
		case c == ':' || c == '-' || c == '.':
			// separator, drop
		default:
			return mac
		}
	}
	if len(hex) != 12 {
		return mac
	}
	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.Write(hex[i : i+2])
	}
	return b.String()
}
