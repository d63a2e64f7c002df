package domain

import (
	"fmt"
	"strings"
	"time"
)

// RuleType defines what a FilterRule's pattern is matched against.
//
// domain   - substring of the request host
// url      - substring of the full request URL
// keyword  - case-insensitive regular expression over the full URL
// category - rule categories intersected with the malicious-category set
type RuleType uint8

const (
	// RuleTypeDomain matches the pattern as a substring of the request host.
	RuleTypeDomain RuleType = iota
	// RuleTypeURL matches the pattern as a substring of the full URL.
	RuleTypeURL
	// RuleTypeKeyword matches the pattern as a case-insensitive regexp.
	RuleTypeKeyword
	// RuleTypeCategory matches when the rule's categories intersect the
	// malicious-category set.
	RuleTypeCategory
)

// String returns a stable string representation of the rule type.
func (t RuleType) String() string {
	switch t {
	case RuleTypeDomain:
		return "domain"
	case RuleTypeURL:
		return "url"
	case RuleTypeKeyword:
		return "keyword"
	case RuleTypeCategory:
		return "category"
	default:
		return fmt.Sprintf("RuleType(%d)", t)
	}
}

// ParseRuleType converts a string into a RuleType (case-insensitive).
func ParseRuleType(s string) (RuleType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "domain":
		return RuleTypeDomain, nil
	case "url":
		return RuleTypeURL, nil
	case "keyword":
		return RuleTypeKeyword, nil
	case "category":
		return RuleTypeCategory, nil
	default:
		return 0, fmt.Errorf("unsupported RuleType: %q", s)
	}
}

// RuleAction defines what happens when a rule matches.
//
// Block and Allow are terminal: the first matching rule of either action in
// priority order decides the verdict. Redirect and Monitor are recorded but
// do not terminate evaluation.
type RuleAction uint8

const (
	// ActionBlock denies the request.
	ActionBlock RuleAction = iota
	// ActionAllow permits the request.
	ActionAllow
	// ActionRedirect rewrites the request target (non-terminal here).
	ActionRedirect
	// ActionMonitor records the match without affecting the verdict.
	ActionMonitor
)

// String returns a stable string representation of the rule action.
func (a RuleAction) String() string {
	switch a {
	case ActionBlock:
		return "block"
	case ActionAllow:
		return "allow"
	case ActionRedirect:
		return "redirect"
	case ActionMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("RuleAction(%d)", a)
	}
}

// ParseRuleAction converts a string into a RuleAction (case-insensitive).
func ParseRuleAction(s string) (RuleAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return ActionBlock, nil
	case "allow":
		return ActionAllow, nil
	case "redirect":
		return ActionRedirect, nil
	case "monitor":
		return ActionMonitor, nil
	default:
		return 0, fmt.Errorf("unsupported RuleAction: %q", s)
	}
}

// Terminal reports whether the action ends rule evaluation when matched.
func (a RuleAction) Terminal() bool {
	return a == ActionBlock || a == ActionAllow
}

// FilterRule represents a single mutable filtering rule.
//
// Notes:
// - ID is an opaque identifier assigned by the caller.
// - Lower Priority values are evaluated first.
// - Categories are free-form labels consulted by category rules.
type FilterRule struct {
	ID         string
	Name       string // human-readable name, used as the block reason
	Pattern    string
	Type       RuleType
	Action     RuleAction
	Enabled    bool
	Priority   int
	Categories []string
	CreatedAt  time.Time
}

// NewFilterRule constructs a FilterRule and validates its fields.
func NewFilterRule(id, name, pattern string, rt RuleType, action RuleAction, priority int, createdAt time.Time) (FilterRule, error) {
	r := FilterRule{
		ID:        strings.TrimSpace(id),
		Name:      strings.TrimSpace(name),
		Pattern:   strings.TrimSpace(pattern),
		Type:      rt,
		Action:    action,
		Enabled:   true,
		Priority:  priority,
		CreatedAt: createdAt,
	}
	if err := r.Validate(); err != nil {
		return FilterRule{}, err
	}
	return r, nil
}

// Validate checks the FilterRule for required fields and supported values.
func (r FilterRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id must not be empty")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Pattern == "" && r.Type != RuleTypeCategory {
		return fmt.Errorf("rule pattern must not be empty")
	}
	switch r.Type {
	case RuleTypeDomain, RuleTypeURL, RuleTypeKeyword, RuleTypeCategory:
		// ok
	default:
		return fmt.Errorf("unsupported RuleType: %d", r.Type)
	}
	switch r.Action {
	case ActionBlock, ActionAllow, ActionRedirect, ActionMonitor:
		// ok
	default:
		return fmt.Errorf("unsupported RuleAction: %d", r.Action)
	}
	return nil
}
