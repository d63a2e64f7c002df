package bolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-gate/internal/gate/domain"
	"github.com/haukened/rr-gate/internal/gate/repos/rules"
)

var (
	bucketRules      = []byte("rules")
	bucketDomains    = []byte("domains")
	bucketCategories = []byte("categories")
	bucketMeta       = []byte("meta")

	keyGeneration = []byte("generation")
	keyUpdated    = []byte("updated")
)

// persistedRule is the JSON shape of one FilterRule in the rules bucket.
// Enum fields are stored as their string forms so the file survives enum
// renumbering.
type persistedRule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Pattern    string    `json:"pattern"`
	Type       string    `json:"type"`
	Action     string    `json:"action"`
	Enabled    bool      `json:"enabled"`
	Priority   int       `json:"priority"`
	Categories []string  `json:"categories,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// boltStore implements rules.Store using bbolt.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (rules.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRules, bucketDomains, bucketCategories, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// SaveSnapshot rewrites the whole rule configuration in one transaction.
func (s *boltStore) SaveSnapshot(snap rules.Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRules, bucketDomains, bucketCategories} {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		rb := tx.Bucket(bucketRules)
		for _, ru := range snap.Rules {
			v, err := json.Marshal(persistedRule{
				ID:         ru.ID,
				Name:       ru.Name,
				Pattern:    ru.Pattern,
				Type:       ru.Type.String(),
				Action:     ru.Action.String(),
				Enabled:    ru.Enabled,
				Priority:   ru.Priority,
				Categories: ru.Categories,
				CreatedAt:  ru.CreatedAt,
			})
			if err != nil {
				return err
			}
			if err := rb.Put([]byte(ru.ID), v); err != nil {
				return err
			}
		}

		db := tx.Bucket(bucketDomains)
		for _, d := range snap.BlockedDomains {
			if err := db.Put([]byte(d), []byte{1}); err != nil {
				return err
			}
		}

		cb := tx.Bucket(bucketCategories)
		for _, c := range snap.MaliciousCategories {
			if err := cb.Put([]byte(c), []byte{1}); err != nil {
				return err
			}
		}

		mb := tx.Bucket(bucketMeta)
		var gen, upd [8]byte
		binary.BigEndian.PutUint64(gen[:], snap.Generation)
		binary.BigEndian.PutUint64(upd[:], uint64(snap.UpdatedUnix))
		if err := mb.Put(keyGeneration, gen[:]); err != nil {
			return err
		}
		return mb.Put(keyUpdated, upd[:])
	})
}

// LoadSnapshot reads the persisted configuration. The second return value is
// false when no snapshot has ever been written.
func (s *boltStore) LoadSnapshot() (rules.Snapshot, bool, error) {
	var snap rules.Snapshot
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(bucketMeta)
		if mb == nil || mb.Get(keyGeneration) == nil {
			return nil
		}
		found = true
		if v := mb.Get(keyGeneration); len(v) == 8 {
			snap.Generation = binary.BigEndian.Uint64(v)
		}
		if v := mb.Get(keyUpdated); len(v) == 8 {
			snap.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
		}

		if rb := tx.Bucket(bucketRules); rb != nil {
			if err := rb.ForEach(func(k, v []byte) error {
				var pr persistedRule
				if err := json.Unmarshal(v, &pr); err != nil {
					return fmt.Errorf("rule %q: %w", k, err)
				}
				rt, err := domain.ParseRuleType(pr.Type)
				if err != nil {
					return fmt.Errorf("rule %q: %w", k, err)
				}
				action, err := domain.ParseRuleAction(pr.Action)
				if err != nil {
					return fmt.Errorf("rule %q: %w", k, err)
				}
				snap.Rules = append(snap.Rules, domain.FilterRule{
					ID:         pr.ID,
					Name:       pr.Name,
					Pattern:    pr.Pattern,
					Type:       rt,
					Action:     action,
					Enabled:    pr.Enabled,
					Priority:   pr.Priority,
					Categories: pr.Categories,
					CreatedAt:  pr.CreatedAt,
				})
				return nil
			}); err != nil {
				return err
			}
		}

		if db := tx.Bucket(bucketDomains); db != nil {
			if err := db.ForEach(func(k, _ []byte) error {
				snap.BlockedDomains = append(snap.BlockedDomains, string(k))
				return nil
			}); err != nil {
				return err
			}
		}

		if cb := tx.Bucket(bucketCategories); cb != nil {
			if err := cb.ForEach(func(k, _ []byte) error {
				snap.MaliciousCategories = append(snap.MaliciousCategories, string(k))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return rules.Snapshot{}, found, err
	}
	return snap, found, nil
}

var _ rules.Store = (*boltStore)(nil)
