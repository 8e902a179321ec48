package strata

import (
	"sort"
	"time"
)

// PlanPriority orders migration plan items. High-priority items run first.
type PlanPriority int

const (
	PlanPriorityMedium PlanPriority = iota
	PlanPriorityHigh
)

// String returns the human-readable name of the plan priority.
func (p PlanPriority) String() string {
	if p == PlanPriorityHigh {
		return "high"
	}
	return "medium"
}

// PlannerPolicy holds the hand-tuned planning constants. The defaults are
// carried over from the source behavior verbatim; they are named and
// overridable but not re-derived.
type PlannerPolicy struct {
	// PerformanceWeight and CostWeight blend the per-tier performance and
	// cost score differences into the estimated benefit.
	PerformanceWeight float64 `json:"performance_weight" yaml:"performance_weight"`
	CostWeight        float64 `json:"cost_weight" yaml:"cost_weight"`

	// HighAccessThreshold marks a promotion high-priority when the entry
	// has more total accesses than this.
	HighAccessThreshold int `json:"high_access_threshold" yaml:"high_access_threshold"`

	// StaleAccessAge marks a demotion high-priority when the entry has
	// not been accessed for longer than this.
	StaleAccessAge time.Duration `json:"stale_access_age" yaml:"stale_access_age"`
}

// DefaultPlannerPolicy returns the default planning policy.
func DefaultPlannerPolicy() PlannerPolicy {
	return PlannerPolicy{
		PerformanceWeight:   0.6,
		CostWeight:          0.4,
		HighAccessThreshold: 10,
		StaleAccessAge:      30 * 24 * time.Hour,
	}
}

// MigrationPlanItem is one proposed move in a migration plan. Plans are
// computed fresh on each planning pass and never persisted.
type MigrationPlanItem struct {
	EntryKey         string       `json:"entry_key"`
	FromTier         StorageTier  `json:"from_tier"`
	ToTier           StorageTier  `json:"to_tier"`
	Priority         PlanPriority `json:"priority"`
	EstimatedBenefit float64      `json:"estimated_benefit"`
	Accesses         AccessInfo   `json:"accesses"`
}

// MigrationPlanner compares current and optimal tiers for tracked entries
// and produces an ordered migration plan.
type MigrationPlanner struct {
	scoring *TierScoringEngine
	tracker *AccessPatternTracker
	policy  PlannerPolicy
	now     func() time.Time
}

// NewMigrationPlanner creates a planner over the given scoring engine and
// tracker.
func NewMigrationPlanner(scoring *TierScoringEngine, tracker *AccessPatternTracker, policy PlannerPolicy) *MigrationPlanner {
	return &MigrationPlanner{
		scoring: scoring,
		tracker: tracker,
		policy:  policy,
		now:     time.Now,
	}
}

// CreatePlan computes the migration plan for the given entries, sorted by
// priority descending then estimated benefit descending. An empty plan
// means no migrations are needed.
func (p *MigrationPlanner) CreatePlan(entries []*StorageEntry) []MigrationPlanItem {
	var plan []MigrationPlanItem
	for _, entry := range entries {
		info, _ := p.tracker.Get(entry.Key)
		optimal := p.scoring.CalculateOptimalTier(entry, &info)
		if optimal == entry.StorageTier {
			continue
		}
		plan = append(plan, MigrationPlanItem{
			EntryKey:         entry.Key,
			FromTier:         entry.StorageTier,
			ToTier:           optimal,
			Priority:         p.priorityFor(entry.StorageTier, optimal, &info),
			EstimatedBenefit: p.estimatedBenefit(entry.StorageTier, optimal),
			Accesses:         info,
		})
	}

	sort.Slice(plan, func(i, j int) bool {
		if plan[i].Priority != plan[j].Priority {
			return plan[i].Priority > plan[j].Priority
		}
		if plan[i].EstimatedBenefit != plan[j].EstimatedBenefit {
			return plan[i].EstimatedBenefit > plan[j].EstimatedBenefit
		}
		return plan[i].EntryKey < plan[j].EntryKey
	})
	return plan
}

// priorityFor assigns high priority to promotions of frequently accessed
// entries and demotions of stale ones; everything else is medium.
func (p *MigrationPlanner) priorityFor(from, to StorageTier, info *AccessInfo) PlanPriority {
	if to.FasterThan(from) {
		if info.TotalAccesses > p.policy.HighAccessThreshold {
			return PlanPriorityHigh
		}
		return PlanPriorityMedium
	}
	// Demotion: never-accessed entries count as stale.
	if info.LastAccess == nil || p.now().Sub(*info.LastAccess) > p.policy.StaleAccessAge {
		return PlanPriorityHigh
	}
	return PlanPriorityMedium
}

// estimatedBenefit blends the performance gain of the move with its cost
// saving. Promotions score positive, demotions negative, so within a
// priority class promotions sort ahead.
func (p *MigrationPlanner) estimatedBenefit(from, to StorageTier) float64 {
	perf := to.PerformanceScore() - from.PerformanceScore()
	cost := from.CostScore() - to.CostScore()
	return p.policy.PerformanceWeight*perf + p.policy.CostWeight*cost
}
