package cache

import (
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tracker records when each disk entry was last accessed. Every mutation is
// written through to the MetadataStore before it returns.
type Tracker struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[string]time.Time
	store      MetadataStore
	logger     *zap.Logger
}

// NewTracker loads the persisted metadata once. Unreadable metadata is
// discarded and the tracker starts empty.
func NewTracker(store MetadataStore, maxEntries int, log *zap.Logger) *Tracker {
	entries, err := store.Load()
	if err != nil {
		log.Warn("Discarding unreadable cache metadata", zap.Error(err))
		entries = make(map[string]time.Time)
	}

	log.Debug("Loaded cache metadata", zap.Int("entries", len(entries)), zap.Int("max_entries", maxEntries))

	return &Tracker{
		maxEntries: maxEntries,
		entries:    entries,
		store:      store,
		logger:     log,
	}
}

func (t *Tracker) IsFull() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries) >= t.maxEntries
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

func (t *Tracker) MaxEntries() int {
	return t.maxEntries
}

// OldestKeys returns up to count keys, least recently accessed first. Keys
// with equal timestamps come back in no particular order.
func (t *Tracker) OldestKeys(count int) []string {
	if count <= 0 {
		return nil
	}

	t.mu.RLock()
	keys := slices.Collect(maps.Keys(t.entries))
	slices.SortFunc(keys, func(a, b string) int {
		return t.entries[a].Compare(t.entries[b])
	})
	t.mu.RUnlock()

	if len(keys) > count {
		keys = keys[:count]
	}
	return keys
}

func (t *Tracker) LastAccess(key string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	at, ok := t.entries[key]
	return at, ok
}

func (t *Tracker) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Collect(maps.Keys(t.entries))
}

// RecordOrTouch inserts key or moves its timestamp to at.
func (t *Tracker) RecordOrTouch(key string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = at
	return t.persist()
}

// Touch moves the timestamp of a tracked key to at. Untracked keys are left
// alone and reported as false.
func (t *Tracker) Touch(key string, at time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[key]; !ok {
		return false, nil
	}
	t.entries[key] = at
	return true, t.persist()
}

func (t *Tracker) Remove(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[key]; !ok {
		return nil
	}
	delete(t.entries, key)
	return t.persist()
}

func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]time.Time)
	return t.persist()
}

// persist writes the full map. Caller must hold the write lock.
func (t *Tracker) persist() error {
	return t.store.Save(t.entries)
}
