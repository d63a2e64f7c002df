// Package engine evaluates request URLs against the rule store, producing
// block/allow decisions. Evaluation order: decision cache, blocked-domain
// set, enabled rules by ascending priority, then the suspicious-pattern
// heuristics. Unparsable URLs fail closed so a malformed request can never
// bypass the filter.
package engine

import (
	"net/url"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/common/utils"
	"github.com/haukened/rr-gate/internal/gate/domain"
)

// Engine is the filtering decision engine.
type Engine struct {
	rules   RuleProvider
	logger  log.Logger
	regexes *lru.Cache[string, *regexp.Regexp] // compiled keyword patterns
}

// Options configures an Engine.
type Options struct {
	Rules          RuleProvider
	Logger         log.Logger
	RegexCacheSize int
}

// New constructs an Engine.
func New(opts Options) (*Engine, error) {
	size := opts.RegexCacheSize
	if size <= 0 {
		size = 128
	}
	regexes, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		return nil, err
	}
	return &Engine{
		rules:   opts.Rules,
		logger:  opts.Logger,
		regexes: regexes,
	}, nil
}

// Evaluate produces a decision for rawURL. Results are cached per exact URL
// string, tagged with the rule-store generation in effect when evaluation
// started.
func (e *Engine) Evaluate(rawURL string) domain.Decision {
	gen := e.rules.Generation()

	if d, ok := e.rules.CachedDecision(rawURL); ok {
		return d
	}

	d := e.classify(rawURL)
	e.rules.StoreDecision(rawURL, d, gen)
	return d
}

// classify runs the uncached evaluation pipeline.
func (e *Engine) classify(rawURL string) domain.Decision {
	host, ok := requestHost(rawURL)
	if !ok {
		e.logger.Debug(map[string]any{"url": rawURL}, "Unparsable URL, failing closed")
		return domain.BlockedBy(domain.ReasonMalformedInput)
	}

	if matched, ok := e.rules.MatchBlockedDomain(host); ok {
		e.logger.Debug(map[string]any{"host": host, "matched": matched}, "Blocked domain match")
		return domain.BlockedBy(domain.ReasonBlockedDomain)
	}

	lowerURL := strings.ToLower(rawURL)
	for _, rule := range e.rules.EnabledRules() {
		if !e.ruleMatches(rule, lowerURL, host) {
			continue
		}
		switch rule.Action {
		case domain.ActionBlock:
			return domain.BlockedBy(rule.Name)
		case domain.ActionAllow:
			return domain.Allowed()
		default:
			// redirect/monitor rules are recorded but non-terminal here
			e.logger.Debug(map[string]any{"rule_id": rule.ID, "action": rule.Action.String()}, "Non-terminal rule match")
		}
	}

	if reason, ok := matchSuspicious(lowerURL, host); ok {
		e.logger.Debug(map[string]any{"host": host, "pattern": reason}, "Suspicious pattern match")
		return domain.BlockedBy(domain.ReasonSuspiciousPattern)
	}

	return domain.Allowed()
}

// ruleMatches tests one rule's pattern against the request according to its
// type. lowerURL must be the lowercased full URL, host the canonical host.
func (e *Engine) ruleMatches(rule domain.FilterRule, lowerURL, host string) bool {
	switch rule.Type {
	case domain.RuleTypeDomain:
		return strings.Contains(host, strings.ToLower(rule.Pattern))
	case domain.RuleTypeURL:
		return strings.Contains(lowerURL, strings.ToLower(rule.Pattern))
	case domain.RuleTypeKeyword:
		re, err := e.compile(rule.Pattern)
		if err != nil {
			e.logger.Warn(map[string]any{"rule_id": rule.ID, "pattern": rule.Pattern, "error": err.Error()}, "Invalid keyword pattern")
			return false
		}
		return re.MatchString(lowerURL)
	case domain.RuleTypeCategory:
		return e.rules.AnyMaliciousCategory(rule.Categories)
	default:
		return false
	}
}

// compile returns the case-insensitive regexp for a keyword pattern, cached
// per pattern string.
func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.regexes.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	e.regexes.Add(pattern, re)
	return re, nil
}

// requestHost extracts the canonical host from a raw URL. Scheme-less inputs
// get one retry with an http prefix before the URL is declared malformed.
func requestHost(rawURL string) (string, bool) {
	if strings.TrimSpace(rawURL) == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if u.Host == "" {
		u, err = url.Parse("http://" + rawURL)
		if err != nil || u.Host == "" {
			return "", false
		}
	}
	host := utils.CanonicalDomain(u.Host)
	if host == "" {
		return "", false
	}
	return host, true
}
