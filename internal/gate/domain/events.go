package domain

import "time"

// EventKind discriminates the outbound events the gateway emits.
type EventKind uint8

const (
	// EventDeviceConnected fires when a device appears in a snapshot.
	EventDeviceConnected EventKind = iota
	// EventDeviceDisconnected fires when a known device leaves a snapshot.
	EventDeviceDisconnected
	// EventSiteBlocked fires when the proxy denies a request.
	EventSiteBlocked
	// EventFilterRuleChanged fires on any rule-store mutation.
	EventFilterRuleChanged
)

// String returns a stable string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventDeviceConnected:
		return "device_connected"
	case EventDeviceDisconnected:
		return "device_disconnected"
	case EventSiteBlocked:
		return "site_blocked"
	case EventFilterRuleChanged:
		return "filter_rule_changed"
	default:
		return "unknown"
	}
}

// Event is a single outbound notification delivered to external observers
// (dashboard, logs). Exactly one payload field is set, matching Kind.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Device    *Device      // connected/disconnected
	Blocked   *SiteBlocked // site blocked
	Change    *RuleChange  // rule store mutation
}

// SiteBlocked describes a denied request.
type SiteBlocked struct {
	URL       string
	Reason    string
	DeviceMAC string
	Timestamp time.Time
}

// RuleChange describes a rule-store mutation.
type RuleChange struct {
	RuleID     string // empty for blocked-domain mutations
	Domain     string // empty for rule mutations
	Generation uint64 // store generation after the mutation
}
