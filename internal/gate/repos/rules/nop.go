package rules

// NopStore is a Store that persists nothing. Used when the rule database is
// unavailable and by tests.
type NopStore struct{}

func (NopStore) SaveSnapshot(Snapshot) error           { return nil }
func (NopStore) LoadSnapshot() (Snapshot, bool, error) { return Snapshot{}, false, nil }
func (NopStore) Close() error                          { return nil }

var _ Store = NopStore{}
