package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-gate/internal/gate/domain"
	"github.com/haukened/rr-gate/internal/gate/repos/rules"
)

// entry pairs a decision with the rule-store generation it was computed under.
type entry struct {
	decision   domain.Decision
	generation uint64
}

// decisionCache is an LRU-backed implementation of rules.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type decisionCache struct {
	lru       *lru.Cache[string, entry]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// New creates a new DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (rules.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var dc decisionCache
	// Use NewWithEvict to observe evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ entry) {
		atomic.AddUint64(&dc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return &dc, nil
}

// Get looks up a decision by URL. Entries tagged with a stale generation are
// treated as misses and dropped.
func (c *decisionCache) Get(url string, gen uint64) (domain.Decision, bool) {
	if e, ok := c.lru.Get(url); ok {
		if e.generation == gen {
			atomic.AddUint64(&c.hits, 1)
			return e.decision, true
		}
		c.lru.Remove(url)
	}
	atomic.AddUint64(&c.misses, 1)
	var zero domain.Decision
	return zero, false
}

// Put stores a decision by URL, tagged with the generation it was computed under.
func (c *decisionCache) Put(url string, d domain.Decision, gen uint64) {
	c.lru.Add(url, entry{decision: d, generation: gen})
}

// Len returns the number of entries in the cache.
func (c *decisionCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

// disabledCache implementation

func (d *disabledCache) Get(string, uint64) (domain.Decision, bool) {
	var zero domain.Decision
	return zero, false
}

func (d *disabledCache) Put(string, domain.Decision, uint64) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ rules.DecisionCache = (*decisionCache)(nil)
var _ rules.DecisionCache = (*disabledCache)(nil)
