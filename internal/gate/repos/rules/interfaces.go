package rules

import "github.com/haukened/rr-gate/internal/gate/domain"

// Snapshot is the full persisted rule configuration: every filter rule, the
// blocked-domain set, and the malicious-category set, plus store metadata.
type Snapshot struct {
	Rules               []domain.FilterRule
	BlockedDomains      []string
	MaliciousCategories []string
	Generation          uint64
	UpdatedUnix         int64 // seconds since epoch
}

// Store abstracts the persistent rule configuration document. The repository
// rewrites the whole snapshot on every mutation and loads it once at startup.
type Store interface {
	SaveSnapshot(s Snapshot) error
	LoadSnapshot() (Snapshot, bool, error)
	Close() error
}

// DecisionCache caches decisions by exact URL string, tagged with the store
// generation they were computed under. A lookup only hits when the entry's
// generation matches gen.
type DecisionCache interface {
	Get(url string, gen uint64) (domain.Decision, bool)
	Put(url string, d domain.Decision, gen uint64)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// BloomFilter is the minimal interface the repository needs from Bloom
// filters used as a negative prefilter over the blocked-domain set.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a BloomFilter sized for n entries at the target
// false-positive rate.
type BloomFactory interface {
	New(n uint64, fpRate float64) BloomFilter
}

// Publisher delivers rule-store mutation events to external observers.
// Implementations must not block the caller.
type Publisher interface {
	Publish(e domain.Event)
}

// RepoStats exposes repository-level counters for observers.
type RepoStats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Rules       int
	Domains     int
	Generation  uint64
	LastUpdated int64 // seconds since epoch
}
