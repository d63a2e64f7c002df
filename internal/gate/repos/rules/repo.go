package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/haukened/rr-gate/internal/gate/common/clock"
	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/common/utils"
	"github.com/haukened/rr-gate/internal/gate/domain"
)

// Repository owns the ordered, mutable filter-rule set, the blocked-domain
// set, the malicious-category set, and the generation-tagged decision cache.
//
// Concurrency: readers (the decision engine, proxy workers) take the read
// lock and never wait on I/O while holding it. Mutations take a short
// exclusive section that bumps the generation, purges the cache, swaps the
// Bloom filter, and rewrites the persisted snapshot.
type Repository struct {
	mu       sync.RWMutex
	saveMu   sync.Mutex // serializes snapshot writes so they land in generation order
	savedGen uint64     // guarded by saveMu
	store    Store
	cache    DecisionCache
	bloom    BloomFilter
	factory  BloomFactory
	fpRate   float64
	clock    clock.Clock
	logger   log.Logger
	events   Publisher

	rules      []domain.FilterRule // ascending priority order
	byID       map[string]domain.FilterRule
	blocked    map[string]struct{}
	categories map[string]struct{}
	generation uint64
}

// Options configures a Repository.
type Options struct {
	Store   Store
	Cache   DecisionCache
	Factory BloomFactory
	FPRate  float64
	Clock   clock.Clock
	Logger  log.Logger
	Events  Publisher // optional
}

// NewRepository constructs a Repository and loads the persisted snapshot.
// When the snapshot is absent or corrupt the repository starts from the
// default configuration and logs the condition, never failing startup.
func NewRepository(opts Options) *Repository {
	r := &Repository{
		store:      opts.Store,
		cache:      opts.Cache,
		factory:    opts.Factory,
		fpRate:     opts.FPRate,
		clock:      opts.Clock,
		logger:     opts.Logger,
		events:     opts.Events,
		byID:       make(map[string]domain.FilterRule),
		blocked:    make(map[string]struct{}),
		categories: make(map[string]struct{}),
	}
	if r.fpRate <= 0 {
		r.fpRate = 0.01
	}

	snap, found, err := r.store.LoadSnapshot()
	if err != nil {
		r.logger.Warn(map[string]any{"error": err.Error()}, "Rule snapshot unreadable, starting from defaults")
		snap = DefaultSnapshot()
	} else if !found {
		r.logger.Info(nil, "No rule snapshot found, starting from defaults")
		snap = DefaultSnapshot()
	}
	r.install(snap)
	return r
}

// DefaultSnapshot returns the configuration used when no persisted snapshot
// exists: no rules, no blocked domains, and a baseline malicious-category set.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		MaliciousCategories: []string{"malware", "phishing", "adult", "gambling"},
	}
}

// install replaces all in-memory state from a snapshot. Callers must not
// hold the lock.
func (r *Repository) install(s Snapshot) {
	byID := make(map[string]domain.FilterRule, len(s.Rules))
	rules := make([]domain.FilterRule, 0, len(s.Rules))
	for _, ru := range s.Rules {
		if err := ru.Validate(); err != nil {
			r.logger.Warn(map[string]any{"rule_id": ru.ID, "error": err.Error()}, "Skipping invalid persisted rule")
			continue
		}
		if _, dup := byID[ru.ID]; dup {
			continue
		}
		byID[ru.ID] = ru
		rules = append(rules, ru)
	}
	sortRules(rules)

	blocked := make(map[string]struct{}, len(s.BlockedDomains))
	for _, d := range s.BlockedDomains {
		if cd := utils.CanonicalDomain(d); cd != "" {
			blocked[cd] = struct{}{}
		}
	}
	categories := make(map[string]struct{}, len(s.MaliciousCategories))
	for _, c := range s.MaliciousCategories {
		categories[c] = struct{}{}
	}

	r.mu.Lock()
	r.rules = rules
	r.byID = byID
	r.blocked = blocked
	r.categories = categories
	r.generation = s.Generation
	r.bloom = r.buildBloom(blocked)
	r.cache.Purge()
	r.mu.Unlock()
}

// sortRules orders rules by ascending priority, breaking ties by ID so the
// order is deterministic.
func sortRules(rules []domain.FilterRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// buildBloom constructs a fresh Bloom filter over the blocked-domain set.
func (r *Repository) buildBloom(blocked map[string]struct{}) BloomFilter {
	bf := r.factory.New(uint64(len(blocked))+1, r.fpRate)
	for d := range blocked {
		bf.Add([]byte(d))
	}
	return bf
}

// AddRule inserts a new rule. Fails when a rule with the same ID exists.
func (r *Repository) AddRule(rule domain.FilterRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return r.mutate(rule.ID, "", func() error {
		if _, exists := r.byID[rule.ID]; exists {
			return fmt.Errorf("rule %q already exists", rule.ID)
		}
		r.byID[rule.ID] = rule
		r.rules = append(r.rules, rule)
		sortRules(r.rules)
		return nil
	})
}

// RemoveRule deletes a rule by ID.
func (r *Repository) RemoveRule(id string) error {
	return r.mutate(id, "", func() error {
		if _, exists := r.byID[id]; !exists {
			return fmt.Errorf("rule %q not found", id)
		}
		delete(r.byID, id)
		for i := range r.rules {
			if r.rules[i].ID == id {
				r.rules = append(r.rules[:i], r.rules[i+1:]...)
				break
			}
		}
		return nil
	})
}

// UpdateRule replaces an existing rule, re-sorting by priority.
func (r *Repository) UpdateRule(rule domain.FilterRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return r.mutate(rule.ID, "", func() error {
		if _, exists := r.byID[rule.ID]; !exists {
			return fmt.Errorf("rule %q not found", rule.ID)
		}
		r.byID[rule.ID] = rule
		for i := range r.rules {
			if r.rules[i].ID == rule.ID {
				r.rules[i] = rule
				break
			}
		}
		sortRules(r.rules)
		return nil
	})
}

// AddBlockedDomain inserts a domain into the blocked set (case-insensitive).
func (r *Repository) AddBlockedDomain(d string) error {
	cd := utils.CanonicalDomain(d)
	if cd == "" {
		return fmt.Errorf("blocked domain must not be empty")
	}
	return r.mutate("", cd, func() error {
		r.blocked[cd] = struct{}{}
		r.bloom = r.buildBloom(r.blocked)
		return nil
	})
}

// RemoveBlockedDomain removes a domain from the blocked set.
func (r *Repository) RemoveBlockedDomain(d string) error {
	cd := utils.CanonicalDomain(d)
	return r.mutate("", cd, func() error {
		if _, exists := r.blocked[cd]; !exists {
			return fmt.Errorf("domain %q not blocked", cd)
		}
		delete(r.blocked, cd)
		r.bloom = r.buildBloom(r.blocked)
		return nil
	})
}

// SetMaliciousCategories replaces the malicious-category set.
func (r *Repository) SetMaliciousCategories(cats []string) error {
	return r.mutate("", "", func() error {
		r.categories = make(map[string]struct{}, len(cats))
		for _, c := range cats {
			r.categories[c] = struct{}{}
		}
		return nil
	})
}

// mutate runs fn inside the exclusive section, then bumps the generation,
// purges the decision cache, persists the snapshot, and emits a
// FilterRuleChanged event. fn must only touch in-memory state.
func (r *Repository) mutate(ruleID, blockedDomain string, fn func() error) error {
	r.mu.Lock()
	if err := fn(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.generation++
	gen := r.generation
	r.cache.Purge()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	// Persistence happens outside the read/write lock so readers are never
	// blocked on disk I/O; saveMu keeps snapshots in generation order.
	r.saveMu.Lock()
	if snap.Generation > r.savedGen {
		if err := r.store.SaveSnapshot(snap); err != nil {
			r.logger.Error(map[string]any{"error": err.Error(), "generation": gen}, "Failed to persist rule snapshot")
		} else {
			r.savedGen = snap.Generation
		}
	}
	r.saveMu.Unlock()

	if r.events != nil {
		r.events.Publish(domain.Event{
			Kind:      domain.EventFilterRuleChanged,
			Timestamp: r.clock.Now(),
			Change:    &domain.RuleChange{RuleID: ruleID, Domain: blockedDomain, Generation: gen},
		})
	}
	return nil
}

// snapshotLocked materializes the current state. Caller holds the lock.
func (r *Repository) snapshotLocked() Snapshot {
	s := Snapshot{
		Rules:      append([]domain.FilterRule(nil), r.rules...),
		Generation: r.generation,
	}
	if r.clock != nil {
		s.UpdatedUnix = r.clock.Now().Unix()
	}
	for d := range r.blocked {
		s.BlockedDomains = append(s.BlockedDomains, d)
	}
	sort.Strings(s.BlockedDomains)
	for c := range r.categories {
		s.MaliciousCategories = append(s.MaliciousCategories, c)
	}
	sort.Strings(s.MaliciousCategories)
	return s
}

// Generation returns the current mutation generation.
func (r *Repository) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// CachedDecision returns the cached decision for url when one exists and is
// still valid for the current generation.
func (r *Repository) CachedDecision(url string) (domain.Decision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Get(url, r.generation)
}

// StoreDecision caches a decision computed under gen. The entry is dropped
// when a mutation happened since gen was read, keeping the cache consistent.
func (r *Repository) StoreDecision(url string, d domain.Decision, gen uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if gen != r.generation {
		return
	}
	r.cache.Put(url, d, gen)
}

// MatchBlockedDomain checks host against the blocked-domain set with exact
// and dot-suffix semantics, returning the matched entry. The Bloom filter
// short-circuits definite misses before any map lookups.
func (r *Repository) MatchBlockedDomain(host string) (string, bool) {
	cn := utils.CanonicalDomain(host)
	r.mu.RLock()
	defer r.mu.RUnlock()
	// walk suffix anchors from the full host down to the apex
	for cand := cn; cand != ""; {
		if r.bloom == nil || r.bloom.MightContain([]byte(cand)) {
			if _, ok := r.blocked[cand]; ok {
				return cand, true
			}
		}
		i := indexDot(cand)
		if i < 0 {
			break
		}
		cand = cand[i+1:]
	}
	return "", false
}

func indexDot(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// EnabledRules returns a copy of the enabled rules in ascending priority order.
func (r *Repository) EnabledRules() []domain.FilterRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.FilterRule, 0, len(r.rules))
	for _, ru := range r.rules {
		if ru.Enabled {
			out = append(out, ru)
		}
	}
	return out
}

// Rule returns a rule by ID.
func (r *Repository) Rule(id string) (domain.FilterRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ru, ok := r.byID[id]
	return ru, ok
}

// AnyMaliciousCategory reports whether any of cats is in the
// malicious-category set.
func (r *Repository) AnyMaliciousCategory(cats []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range cats {
		if _, ok := r.categories[c]; ok {
			return true
		}
	}
	return false
}

// BlockedDomains returns a sorted copy of the blocked-domain set.
func (r *Repository) BlockedDomains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.blocked))
	for d := range r.blocked {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Stats returns repository-level counters.
func (r *Repository) Stats() RepoStats {
	r.mu.RLock()
	rules := len(r.rules)
	domains := len(r.blocked)
	gen := r.generation
	r.mu.RUnlock()
	hits, misses, evictions := r.cache.Stats()
	return RepoStats{
		Hits:       hits,
		Misses:     misses,
		Evictions:  evictions,
		Rules:      rules,
		Domains:    domains,
		Generation: gen,
	}
}

// Close releases the persistence backend.
func (r *Repository) Close() error {
	return r.store.Close()
}
