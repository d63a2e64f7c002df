package engine

import "github.com/haukened/rr-gate/internal/gate/domain"

// RuleProvider is the narrow view of the rule store the engine evaluates
// against. All methods are safe for concurrent use and never block on I/O.
type RuleProvider interface {
	// Generation returns the store's current mutation generation.
	Generation() uint64

	// CachedDecision returns a generation-valid cached decision for url.
	CachedDecision(url string) (domain.Decision, bool)

	// StoreDecision caches a decision computed under gen; the store drops it
	// when a mutation happened since gen was read.
	StoreDecision(url string, d domain.Decision, gen uint64)

	// MatchBlockedDomain checks host against the blocked-domain set with
	// exact and dot-suffix semantics.
	MatchBlockedDomain(host string) (string, bool)

	// EnabledRules returns the enabled rules in ascending priority order.
	EnabledRules() []domain.FilterRule

	// AnyMaliciousCategory reports whether any of cats is malicious.
	AnyMaliciousCategory(cats []string) bool
}
