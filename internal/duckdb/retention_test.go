package duckdb

import (
	"testing"
	"time"
)

func TestRetentionCleaner_DisabledIsNil(t *testing.T) {
	store := newTestStore(t)
	if rc := NewRetentionCleaner(store, RetentionConfig{}); rc != nil {
		t.Fatal("expected nil cleaner when retention is 0")
	}
}

func TestRetentionCleaner_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 1})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}

	cleaner.Stop()
	cleaner.Stop()
}

func TestRetentionCleaner_SweepDeletesExpired(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	seed(t, store, now.Add(-72*time.Hour))
	seed(t, store, now)

	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 2})
	defer cleaner.Stop()

	counts, err := store.TableRowCounts()
	if err != nil {
		t.Fatalf("TableRowCounts: %v", err)
	}
	want := map[string]int64{"count_events": 3, "amount_events": 2, "status_events": 3, "interval_results": 2}
	for table, n := range want {
		if counts[table] != n {
			t.Errorf("%s = %d after sweep, want %d", table, counts[table], n)
		}
	}

	if n := cleaner.Sweep(); n != 0 {
		t.Errorf("second sweep deleted %d rows, want 0", n)
	}
}
