package strata

import (
	"context"
	"log"
	"time"
)

// MigrationResult records the outcome of one attempted migration.
type MigrationResult struct {
	Item        MigrationPlanItem `json:"item"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Duration    time.Duration     `json:"duration"`
	CompletedAt time.Time         `json:"completed_at"`
}

// ExecutionReport summarizes one migration pass. A pass is not atomic:
// a crash mid-pass leaves some entries migrated and others not, and the
// next pass re-converges toward optimal placement.
type ExecutionReport struct {
	Executed int               `json:"executed"`
	Failed   int               `json:"failed"`
	Results  []MigrationResult `json:"results"`
}

// MigrationExecutor applies migration plans against the substrate.
// Migrations are independent units of work: a single failure is logged
// and the plan continues with the next item.
type MigrationExecutor struct {
	substrate Substrate
	tracker   *AccessPatternTracker
	logger    *log.Logger
}

// NewMigrationExecutor creates an executor. A nil logger uses the
// standard logger.
func NewMigrationExecutor(substrate Substrate, tracker *AccessPatternTracker, logger *log.Logger) *MigrationExecutor {
	if logger == nil {
		logger = log.Default()
	}
	return &MigrationExecutor{
		substrate: substrate,
		tracker:   tracker,
		logger:    logger,
	}
}

// ExecuteMigration relocates a single entry's object from the source
// tier's area to the destination's. The relocation is an atomic move, so
// the entry is never visible in two tiers or in none. On success the
// tracker's migration history is updated.
func (e *MigrationExecutor) ExecuteMigration(ctx context.Context, item MigrationPlanItem) error {
	if err := e.substrate.Move(ctx, item.EntryKey, item.FromTier, item.ToTier); err != nil {
		return err
	}
	e.tracker.RecordMigration(item.EntryKey, item.FromTier, item.ToTier)
	return nil
}

// ExecutePlan applies plan items sequentially in the given order.
// Cancellation is checked between items, never mid-move, so no entry is
// left half-moved. Per-item failures are absorbed into the report.
// applied, when non-nil, is invoked after each successful move and before
// the next item starts, so the caller can commit its tier pointer while
// the rest of the plan is still running.
func (e *MigrationExecutor) ExecutePlan(ctx context.Context, plan []MigrationPlanItem, applied func(MigrationPlanItem)) ExecutionReport {
	report := ExecutionReport{Results: make([]MigrationResult, 0, len(plan))}
	for _, item := range plan {
		if err := ctx.Err(); err != nil {
			e.logger.Printf("strata: migration pass cancelled after %d/%d items", len(report.Results), len(plan))
			break
		}

		start := time.Now()
		result := MigrationResult{Item: item}
		if err := e.ExecuteMigration(ctx, item); err != nil {
			result.Error = err.Error()
			report.Failed++
			e.logger.Printf("strata: migration of %q %s->%s failed: %v",
				item.EntryKey, item.FromTier, item.ToTier, err)
		} else {
			result.Success = true
			report.Executed++
			if applied != nil {
				applied(item)
			}
		}
		result.Duration = time.Since(start)
		result.CompletedAt = time.Now()
		report.Results = append(report.Results, result)
	}
	return report
}
