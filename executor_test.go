package strata

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

// faultySubstrate wraps a substrate and fails moves of selected keys.
type faultySubstrate struct {
	Substrate
	failKeys map[string]bool
	moves    int
}

func (f *faultySubstrate) Move(ctx context.Context, key string, from, to StorageTier) error {
	if f.failKeys[key] {
		return errors.New("injected move failure")
	}
	f.moves++
	return f.Substrate.Move(ctx, key, from, to)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestExecuteMigrationMovesAndRecords(t *testing.T) {
	ctx := context.Background()
	sub := NewMemorySubstrate()
	tracker := NewAccessPatternTracker(DefaultTrackerConfig())
	exec := NewMigrationExecutor(sub, tracker, quietLogger())

	if err := sub.Write(ctx, TierHot, "a", []byte("payload")); err != nil {
		t.Fatal(err)
	}

	item := MigrationPlanItem{EntryKey: "a", FromTier: TierHot, ToTier: TierCool}
	if err := exec.ExecuteMigration(ctx, item); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// The object lives in exactly one tier afterwards.
	if ok, _ := sub.Exists(ctx, TierHot, "a"); ok {
		t.Error("object still present in source tier")
	}
	data, err := sub.Read(ctx, TierCool, "a")
	if err != nil {
		t.Fatalf("read from destination tier: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("payload corrupted: %q", data)
	}

	info, ok := tracker.Get("a")
	if !ok || len(info.MigrationHistory) != 1 {
		t.Fatalf("migration history = %v, want one record", info.MigrationHistory)
	}
	rec := info.MigrationHistory[0]
	if rec.FromTier != TierHot || rec.ToTier != TierCool {
		t.Errorf("record = %s->%s, want hot->cool", rec.FromTier, rec.ToTier)
	}
}

func TestExecuteMigrationMissingObject(t *testing.T) {
	ctx := context.Background()
	sub := NewMemorySubstrate()
	tracker := NewAccessPatternTracker(DefaultTrackerConfig())
	exec := NewMigrationExecutor(sub, tracker, quietLogger())

	item := MigrationPlanItem{EntryKey: "ghost", FromTier: TierHot, ToTier: TierCool}
	err := exec.ExecuteMigration(ctx, item)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("error = %v, want ErrObjectNotFound", err)
	}
	if info, ok := tracker.Get("ghost"); ok && len(info.MigrationHistory) > 0 {
		t.Error("failed migration must not be recorded in history")
	}
}

func TestExecutePlanToleratesFailures(t *testing.T) {
	ctx := context.Background()
	inner := NewMemorySubstrate()
	sub := &faultySubstrate{Substrate: inner, failKeys: map[string]bool{"bad": true}}
	tracker := NewAccessPatternTracker(DefaultTrackerConfig())
	exec := NewMigrationExecutor(sub, tracker, quietLogger())

	for _, key := range []string{"one", "bad", "two"} {
		if err := inner.Write(ctx, TierHot, key, []byte(key)); err != nil {
			t.Fatal(err)
		}
	}
	plan := []MigrationPlanItem{
		{EntryKey: "one", FromTier: TierHot, ToTier: TierCold},
		{EntryKey: "bad", FromTier: TierHot, ToTier: TierCold},
		{EntryKey: "two", FromTier: TierHot, ToTier: TierCold},
	}

	var applied []string
	report := exec.ExecutePlan(ctx, plan, func(item MigrationPlanItem) {
		applied = append(applied, item.EntryKey)
	})
	if report.Executed != 2 {
		t.Errorf("executed = %d, want 2", report.Executed)
	}
	// The callback fires for every success and never for the failure.
	if len(applied) != 2 || applied[0] != "one" || applied[1] != "two" {
		t.Errorf("applied callbacks = %v, want [one two]", applied)
	}
	if report.Failed != 1 {
		t.Errorf("failed = %d, want 1", report.Failed)
	}
	if len(report.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(report.Results))
	}
	if report.Results[1].Success || report.Results[1].Error == "" {
		t.Error("failing item should carry its error in the report")
	}
	// The failure did not stop the rest of the plan.
	if !report.Results[2].Success {
		t.Error("item after the failure should still execute")
	}
	if ok, _ := inner.Exists(ctx, TierHot, "bad"); !ok {
		t.Error("failed item must remain in its source tier")
	}
}

func TestExecutePlanCancellationBetweenItems(t *testing.T) {
	inner := NewMemorySubstrate()
	tracker := NewAccessPatternTracker(DefaultTrackerConfig())
	exec := NewMigrationExecutor(inner, tracker, quietLogger())

	ctx := context.Background()
	for _, key := range []string{"one", "two"} {
		if err := inner.Write(ctx, TierHot, key, []byte(key)); err != nil {
			t.Fatal(err)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	plan := []MigrationPlanItem{
		{EntryKey: "one", FromTier: TierHot, ToTier: TierCold},
		{EntryKey: "two", FromTier: TierHot, ToTier: TierCold},
	}
	report := exec.ExecutePlan(cancelled, plan, nil)
	if report.Executed != 0 || report.Failed != 0 {
		t.Errorf("report = %d executed %d failed, want 0/0 under pre-cancelled context", report.Executed, report.Failed)
	}
	if ok, _ := inner.Exists(ctx, TierHot, "one"); !ok {
		t.Error("no item should move under a cancelled context")
	}
}

func TestExecutePlanResultTiming(t *testing.T) {
	ctx := context.Background()
	inner := NewMemorySubstrate()
	tracker := NewAccessPatternTracker(DefaultTrackerConfig())
	exec := NewMigrationExecutor(inner, tracker, quietLogger())

	if err := inner.Write(ctx, TierWarm, "a", []byte("x")); err != nil {
		t.Fatal(err)
	}
	before := time.Now()
	report := exec.ExecutePlan(ctx, []MigrationPlanItem{{EntryKey: "a", FromTier: TierWarm, ToTier: TierCool}}, nil)
	if len(report.Results) != 1 {
		t.Fatal("expected one result")
	}
	if report.Results[0].CompletedAt.Before(before) {
		t.Error("completion timestamp predates execution")
	}
}
