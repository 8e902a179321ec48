package strata

import (
	"testing"
	"time"
)

func TestTrackerRecordAccess(t *testing.T) {
	tr := NewAccessPatternTracker(DefaultTrackerConfig())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	tr.now = func() time.Time { return current }

	tr.RecordAccess("a")
	current = current.Add(time.Hour)
	tr.RecordAccess("a")
	tr.RecordAccess("b")

	info, ok := tr.Get("a")
	if !ok {
		t.Fatal("expected access info for a")
	}
	if info.TotalAccesses != 2 {
		t.Errorf("total accesses = %d, want 2", info.TotalAccesses)
	}
	if info.LastAccess == nil || !info.LastAccess.Equal(current) {
		t.Errorf("last access = %v, want %v", info.LastAccess, current)
	}
	if len(info.AccessTimes) != 2 {
		t.Errorf("window size = %d, want 2", len(info.AccessTimes))
	}
	if tr.Len() != 2 {
		t.Errorf("tracked keys = %d, want 2", tr.Len())
	}
}

func TestTrackerGetReturnsCopy(t *testing.T) {
	tr := NewAccessPatternTracker(DefaultTrackerConfig())
	tr.RecordAccess("a")

	info, _ := tr.Get("a")
	info.TotalAccesses = 99
	info.AccessTimes = append(info.AccessTimes, time.Now())

	again, _ := tr.Get("a")
	if again.TotalAccesses != 1 {
		t.Errorf("total accesses mutated through copy: %d", again.TotalAccesses)
	}
	if len(again.AccessTimes) != 1 {
		t.Errorf("access window mutated through copy: %d", len(again.AccessTimes))
	}
}

func TestTrackerWindowTrimByAge(t *testing.T) {
	tr := NewAccessPatternTracker(TrackerConfig{
		MaxWindowEntries: 100,
		WindowDuration:   24 * time.Hour,
	})

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	current := base
	tr.now = func() time.Time { return current }

	tr.RecordAccess("a")
	current = current.Add(48 * time.Hour)
	tr.RecordAccess("a")

	info, _ := tr.Get("a")
	if info.TotalAccesses != 2 {
		t.Errorf("total accesses = %d, want 2 (totals never trim)", info.TotalAccesses)
	}
	if len(info.AccessTimes) != 1 {
		t.Fatalf("window size = %d, want 1 after age trim", len(info.AccessTimes))
	}
	if !info.AccessTimes[0].Equal(current) {
		t.Errorf("kept timestamp = %v, want %v", info.AccessTimes[0], current)
	}
}

func TestTrackerWindowTrimByCount(t *testing.T) {
	tr := NewAccessPatternTracker(TrackerConfig{
		MaxWindowEntries: 5,
		WindowDuration:   365 * 24 * time.Hour,
	})

	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return current }

	for i := 0; i < 12; i++ {
		tr.RecordAccess("a")
		current = current.Add(time.Minute)
	}

	info, _ := tr.Get("a")
	if info.TotalAccesses != 12 {
		t.Errorf("total accesses = %d, want 12", info.TotalAccesses)
	}
	if len(info.AccessTimes) != 5 {
		t.Errorf("window size = %d, want 5", len(info.AccessTimes))
	}
	// Oldest entries are evicted first.
	oldest := info.AccessTimes[0]
	newest := info.AccessTimes[len(info.AccessTimes)-1]
	if !oldest.Before(newest) {
		t.Errorf("window not in chronological order: %v .. %v", oldest, newest)
	}
}

func TestTrackerMigrationHistory(t *testing.T) {
	tr := NewAccessPatternTracker(DefaultTrackerConfig())

	tr.RecordMigration("a", TierHot, TierCool)
	tr.RecordMigration("a", TierCool, TierCold)

	info, ok := tr.Get("a")
	if !ok {
		t.Fatal("expected access info for a")
	}
	if len(info.MigrationHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(info.MigrationHistory))
	}
	last := info.MigrationHistory[1]
	if last.FromTier != TierCool || last.ToTier != TierCold {
		t.Errorf("last record = %s->%s, want cool->cold", last.FromTier, last.ToTier)
	}

	all := tr.MigrationHistory()
	if len(all["a"]) != 2 {
		t.Errorf("aggregate history length = %d, want 2", len(all["a"]))
	}
}

func TestTrackerSnapshotRoundTrip(t *testing.T) {
	tr := NewAccessPatternTracker(DefaultTrackerConfig())

	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return current }

	for i := 0; i < 4; i++ {
		tr.RecordAccess("a")
		current = current.Add(time.Hour)
	}
	tr.RecordMigration("a", TierWarm, TierHot)
	tr.RecordAccess("b")

	data, err := tr.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored := NewAccessPatternTracker(DefaultTrackerConfig())
	if err := restored.LoadSnapshot(data); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	orig, _ := tr.Get("a")
	got, ok := restored.Get("a")
	if !ok {
		t.Fatal("restored tracker missing key a")
	}
	if got.TotalAccesses != orig.TotalAccesses {
		t.Errorf("total accesses = %d, want %d", got.TotalAccesses, orig.TotalAccesses)
	}
	if len(got.AccessTimes) != len(orig.AccessTimes) {
		t.Errorf("window size = %d, want %d", len(got.AccessTimes), len(orig.AccessTimes))
	}
	if len(got.MigrationHistory) != 1 {
		t.Errorf("history length = %d, want 1", len(got.MigrationHistory))
	}
	if restored.Len() != 2 {
		t.Errorf("restored key count = %d, want 2", restored.Len())
	}
}

func TestTrackerLoadSnapshotRejectsGarbage(t *testing.T) {
	tr := NewAccessPatternTracker(DefaultTrackerConfig())
	tr.RecordAccess("a")

	if err := tr.LoadSnapshot([]byte("not json")); err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
	// State is untouched on failure.
	if _, ok := tr.Get("a"); !ok {
		t.Error("existing state lost after failed load")
	}
}
