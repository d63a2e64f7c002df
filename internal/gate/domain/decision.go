package domain

// Well-known decision reasons produced outside of named rules.
const (
	ReasonMalformedInput    = "malformed input"
	ReasonBlockedDomain     = "blocked domain"
	ReasonSuspiciousPattern = "suspicious pattern"
	ReasonDeviceBlocked     = "device blocked"
)

// Decision represents the outcome of evaluating a request URL against the
// rule store. Pure value type, no external dependencies.
type Decision struct {
	Blocked bool   // true if the request must be denied
	Reason  string // matched rule name or one of the Reason* constants
}

// IsBlocked is a convenience accessor.
func (d Decision) IsBlocked() bool { return d.Blocked }

// Allowed returns a not-blocked decision.
func Allowed() Decision { return Decision{Blocked: false} }

// BlockedBy returns a blocked decision with the given reason.
func BlockedBy(reason string) Decision { return Decision{Blocked: true, Reason: reason} }
