package engine

import (
	"strings"

	"github.com/haukened/rr-gate/internal/gate/common/utils"
)

// Fixed heuristic lists consulted after rule evaluation. These catch common
// evasion vectors: link shorteners that hide the real destination, TLDs with
// disproportionate abuse rates, and urgency/clickbait wording.
var (
	suspiciousHosts = []string{
		"bit.ly",
		"tinyurl.com",
		"goo.gl",
		"t.co",
		"ow.ly",
		"is.gd",
		"cutt.ly",
		"rb.gy",
	}

	suspiciousTLDs = []string{
		".tk",
		".ml",
		".ga",
		".cf",
		".gq",
		".zip",
		".mov",
	}

	suspiciousKeywords = []string{
		"free-prize",
		"you-won",
		"claim-now",
		"verify-account",
		"urgent-action",
		"limited-offer",
	}
)

// matchSuspicious tests the fixed heuristic lists against a lowercased URL
// and its canonical host. The returned string identifies the matched entry.
func matchSuspicious(lowerURL, host string) (string, bool) {
	for _, h := range suspiciousHosts {
		if utils.DomainMatches(host, h) {
			return h, true
		}
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			return tld, true
		}
	}
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lowerURL, kw) {
			return kw, true
		}
	}
	return "", false
}
