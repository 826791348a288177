package cache

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap/zaptest"
)

func newTestTracker(t *testing.T, maxEntries int) (*Tracker, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tracker.db")
	store, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewTracker(store, maxEntries, zaptest.NewLogger(t)), path
}

func loadStore(t *testing.T, tracker *Tracker) map[string]time.Time {
	t.Helper()

	entries, err := tracker.store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return entries
}

func TestTrackerOldestKeys(t *testing.T) {
	tracker, _ := newTestTracker(t, 10)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	for _, i := range []int{3, 0, 4, 1, 2} {
		if err := tracker.RecordOrTouch(fmt.Sprintf("k%d", i), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordOrTouch: %v", err)
		}
	}

	if got, want := tracker.OldestKeys(3), []string{"k0", "k1", "k2"}; !slices.Equal(got, want) {
		t.Errorf("OldestKeys(3) = %v, want %v", got, want)
	}
	if got := tracker.OldestKeys(50); len(got) != 5 {
		t.Errorf("OldestKeys(50) returned %d keys, want all 5", len(got))
	}
	if got := tracker.OldestKeys(0); len(got) != 0 {
		t.Errorf("OldestKeys(0) = %v, want none", got)
	}

	// Touching k0 makes it the newest.
	tracker.RecordOrTouch("k0", base.Add(time.Minute))
	if got, want := tracker.OldestKeys(2), []string{"k1", "k2"}; !slices.Equal(got, want) {
		t.Errorf("OldestKeys(2) after touch = %v, want %v", got, want)
	}
}

func TestTrackerIsFull(t *testing.T) {
	tracker, _ := newTestTracker(t, 3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if tracker.IsFull() {
			t.Fatalf("IsFull with %d entries", i)
		}
		tracker.RecordOrTouch(fmt.Sprintf("k%d", i), now)
	}
	if !tracker.IsFull() {
		t.Error("IsFull should be true at capacity")
	}

	tracker.Remove("k1")
	if tracker.IsFull() {
		t.Error("IsFull should be false after Remove")
	}
}

func TestTrackerPersistsEveryMutation(t *testing.T) {
	tracker, _ := newTestTracker(t, 10)
	at := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

	tracker.RecordOrTouch("a", at)
	tracker.RecordOrTouch("b", at)
	if got := loadStore(t, tracker); len(got) != 2 || !got["a"].Equal(at) {
		t.Fatalf("stored = %v, want a and b at %v", got, at)
	}

	tracker.Remove("a")
	if got := loadStore(t, tracker); len(got) != 1 {
		t.Fatalf("stored after Remove = %v, want only b", got)
	}

	if err := tracker.Remove("never-added"); err != nil {
		t.Errorf("Remove of unknown key: %v", err)
	}

	tracker.Clear()
	if got := loadStore(t, tracker); len(got) != 0 {
		t.Fatalf("stored after Clear = %v, want empty", got)
	}
}

func TestTrackerSurvivesRestart(t *testing.T) {
	tracker, path := newTestTracker(t, 10)
	at := time.Date(2025, 3, 1, 12, 0, 0, 5, time.UTC)
	tracker.RecordOrTouch("a", at)
	tracker.store.Close()

	store, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	defer store.Close()

	reloaded := NewTracker(store, 10, zaptest.NewLogger(t))
	got, ok := reloaded.LastAccess("a")
	if !ok || !got.Equal(at) {
		t.Errorf("LastAccess(a) = %v, %v; want %v (nanoseconds preserved)", got, ok, at)
	}
}

func TestTrackerDiscardsUnreadableMetadata(t *testing.T) {
	tracker, path := newTestTracker(t, 10)
	bs := tracker.store.(*BoltStore)
	err := bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(trackerBucket).Put(entriesKey, []byte("{not json"))
	})
	if err != nil {
		t.Fatalf("corrupting store: %v", err)
	}
	bs.Close()

	store, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	defer store.Close()

	reloaded := NewTracker(store, 10, zaptest.NewLogger(t))
	if reloaded.Len() != 0 {
		t.Errorf("Len = %d, want 0 after unreadable metadata", reloaded.Len())
	}
	if err := reloaded.RecordOrTouch("a", time.Now()); err != nil {
		t.Errorf("RecordOrTouch after discard: %v", err)
	}
}

func TestTrackerConcurrentRecord(t *testing.T) {
	tracker, _ := newTestTracker(t, 1000)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			if err := tracker.RecordOrTouch(key, now.Add(time.Duration(i))); err != nil {
				t.Errorf("RecordOrTouch(%s): %v", key, err)
			}
			tracker.OldestKeys(5)
			tracker.IsFull()
		}(i)
	}
	wg.Wait()

	if tracker.Len() != 100 {
		t.Errorf("Len = %d, want 100", tracker.Len())
	}
	if got := loadStore(t, tracker); len(got) != 100 {
		t.Errorf("persisted %d entries, want 100 (lost update)", len(got))
	}
}

func TestTrackerTouchOnlyUpdatesTrackedKeys(t *testing.T) {
	tracker, _ := newTestTracker(t, 10)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := tracker.Touch("a", base)
	if err != nil || ok {
		t.Fatalf("Touch(untracked) = %v, %v; want false, nil", ok, err)
	}
	if tracker.Len() != 0 {
		t.Fatal("Touch must not register a new key")
	}

	tracker.RecordOrTouch("a", base)
	ok, err = tracker.Touch("a", base.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("Touch(tracked) = %v, %v; want true, nil", ok, err)
	}
	if at, _ := tracker.LastAccess("a"); !at.Equal(base.Add(time.Second)) {
		t.Errorf("LastAccess = %v, want %v", at, base.Add(time.Second))
	}
	if got := loadStore(t, tracker); !got["a"].Equal(base.Add(time.Second)) {
		t.Error("Touch should persist the new timestamp")
	}
}

func TestOpenBoltStoreReportsLockedStore(t *testing.T) {
	_, path := newTestTracker(t, 10)

	_, err := OpenBoltStore(path)
	if err == nil {
		t.Fatal("second open of a held store should fail")
	}
	if !errors.Is(err, bolt.ErrTimeout) {
		t.Errorf("err = %v, want it to wrap bolt.ErrTimeout", err)
	}
}
