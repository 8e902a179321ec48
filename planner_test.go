package strata

import (
	"math"
	"testing"
	"time"
)

func newTestPlanner(now time.Time) (*MigrationPlanner, *AccessPatternTracker) {
	tracker := NewAccessPatternTracker(DefaultTrackerConfig())
	tracker.now = func() time.Time { return now }
	planner := NewMigrationPlanner(newTestScoring(now), tracker, DefaultPlannerPolicy())
	planner.now = func() time.Time { return now }
	return planner, tracker
}

func seedAccesses(tracker *AccessPatternTracker, key string, info AccessInfo) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	copied := info.clone()
	tracker.infos[key] = &copied
}

func TestCreatePlanEmptyWhenOptimal(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	planner, tracker := newTestPlanner(now)

	// Entry already in its optimal tier.
	entry := &StorageEntry{
		Key:         "steady",
		StorageTier: TierWarm,
		CreatedAt:   now.Add(-30 * 24 * time.Hour),
		Metadata:    StorageMetadata{Priority: PriorityMedium},
	}
	seedAccesses(tracker, "steady", regularAccesses(now.Add(-3*24*time.Hour), 20, time.Hour))

	if plan := planner.CreatePlan([]*StorageEntry{entry}); len(plan) != 0 {
		t.Errorf("plan length = %d, want 0", len(plan))
	}
	if plan := planner.CreatePlan(nil); len(plan) != 0 {
		t.Errorf("plan for no entries = %d items, want 0", len(plan))
	}
}

func TestCreatePlanPromotionAndDemotion(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	planner, tracker := newTestPlanner(now)

	busy := &StorageEntry{
		Key:         "busy",
		StorageTier: TierCold,
		CreatedAt:   now.Add(-10 * 24 * time.Hour),
		Metadata:    StorageMetadata{Priority: PriorityMedium},
	}
	seedAccesses(tracker, "busy", regularAccesses(now, 100, time.Hour))

	staleLast := now.Add(-60 * 24 * time.Hour)
	stale := &StorageEntry{
		Key:         "stale",
		StorageTier: TierHot,
		CreatedAt:   now.Add(-100 * 24 * time.Hour),
		Metadata:    StorageMetadata{Priority: PriorityLow},
	}
	seedAccesses(tracker, "stale", AccessInfo{
		TotalAccesses: 1,
		LastAccess:    &staleLast,
		AccessTimes:   []time.Time{staleLast},
	})

	plan := planner.CreatePlan([]*StorageEntry{stale, busy})
	if len(plan) != 2 {
		t.Fatalf("plan length = %d, want 2", len(plan))
	}

	// Both are high priority (hot promotion of a busy entry, demotion of a
	// stale one); the promotion has the larger benefit and sorts first.
	first, second := plan[0], plan[1]
	if first.EntryKey != "busy" || first.FromTier != TierCold || first.ToTier != TierHot {
		t.Errorf("first item = %q %s->%s, want busy cold->hot", first.EntryKey, first.FromTier, first.ToTier)
	}
	if second.EntryKey != "stale" || second.ToTier != TierCold {
		t.Errorf("second item = %q ->%s, want stale ->cold", second.EntryKey, second.ToTier)
	}
	if first.Priority != PlanPriorityHigh || second.Priority != PlanPriorityHigh {
		t.Errorf("priorities = %s/%s, want high/high", first.Priority, second.Priority)
	}
	if first.EstimatedBenefit <= 0 {
		t.Errorf("promotion benefit = %v, want positive", first.EstimatedBenefit)
	}
	if second.EstimatedBenefit >= 0 {
		t.Errorf("demotion benefit = %v, want negative", second.EstimatedBenefit)
	}
	if first.Accesses.TotalAccesses != 100 {
		t.Errorf("plan item carries %d accesses, want 100", first.Accesses.TotalAccesses)
	}
}

func TestCreatePlanRecentBurstPromotesToHot(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	planner, tracker := newTestPlanner(now)

	// 50 accesses over the last week, the latest an hour ago: the entry
	// scores hot, and promoting a busy entry out of cold is high priority.
	entry := &StorageEntry{
		Key:         "burst",
		StorageTier: TierCold,
		CreatedAt:   now.Add(-7 * 24 * time.Hour),
		Metadata:    StorageMetadata{Priority: PriorityMedium},
	}
	seedAccesses(tracker, "burst", regularAccesses(now.Add(-time.Hour), 50, 3*time.Hour))

	plan := planner.CreatePlan([]*StorageEntry{entry})
	if len(plan) != 1 {
		t.Fatalf("plan length = %d, want 1", len(plan))
	}
	if plan[0].ToTier != TierHot {
		t.Errorf("target tier = %s, want hot", plan[0].ToTier)
	}
	if plan[0].Priority != PlanPriorityHigh {
		t.Errorf("priority = %s, want high", plan[0].Priority)
	}
}

func TestPlanPriorityRules(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	planner, _ := newTestPlanner(now)

	recent := now.Add(-time.Hour)
	stale := now.Add(-40 * 24 * time.Hour)

	cases := []struct {
		name string
		from StorageTier
		to   StorageTier
		info AccessInfo
		want PlanPriority
	}{
		{"hot promotion of busy entry", TierCool, TierHot, AccessInfo{TotalAccesses: 11, LastAccess: &recent}, PlanPriorityHigh},
		{"promotion of quiet entry", TierCool, TierWarm, AccessInfo{TotalAccesses: 3, LastAccess: &recent}, PlanPriorityMedium},
		{"demotion of stale entry", TierHot, TierCold, AccessInfo{TotalAccesses: 5, LastAccess: &stale}, PlanPriorityHigh},
		{"demotion of never-accessed entry", TierWarm, TierCold, AccessInfo{}, PlanPriorityHigh},
		{"demotion of active entry", TierHot, TierWarm, AccessInfo{TotalAccesses: 5, LastAccess: &recent}, PlanPriorityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := planner.priorityFor(tc.from, tc.to, &tc.info); got != tc.want {
				t.Errorf("priority = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEstimatedBenefit(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	planner, _ := newTestPlanner(now)

	// Cold->hot: 0.6*(1.0-0.1) + 0.4*(0.1-1.0) = 0.18.
	got := planner.estimatedBenefit(TierCold, TierHot)
	if math.Abs(got-0.18) > 1e-9 {
		t.Errorf("cold->hot benefit = %v, want 0.18", got)
	}
	// The reverse move scores the exact negative.
	if rev := planner.estimatedBenefit(TierHot, TierCold); math.Abs(rev+0.18) > 1e-9 {
		t.Errorf("hot->cold benefit = %v, want -0.18", rev)
	}
	if planner.estimatedBenefit(TierWarm, TierWarm) != 0 {
		t.Error("no-op move should have zero benefit")
	}
}

func TestCreatePlanDeterministicOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	planner, _ := newTestPlanner(now)

	// Three identical never-accessed entries demote with equal priority and
	// benefit; ties break on key so replanning is stable.
	var entries []*StorageEntry
	for _, key := range []string{"c", "a", "b"} {
		entries = append(entries, &StorageEntry{
			Key:         key,
			StorageTier: TierHot,
			CreatedAt:   now.Add(-300 * 24 * time.Hour),
			Metadata:    StorageMetadata{Priority: PriorityLow},
		})
	}

	plan := planner.CreatePlan(entries)
	if len(plan) != 3 {
		t.Fatalf("plan length = %d, want 3", len(plan))
	}
	for i, want := range []string{"a", "b", "c"} {
		if plan[i].EntryKey != want {
			t.Errorf("plan[%d] = %q, want %q", i, plan[i].EntryKey, want)
		}
	}
}
