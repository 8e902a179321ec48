package strata

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// TierStatistics holds the computed state of one tier.
type TierStatistics struct {
	EntryCount       int     `json:"entry_count"`
	TotalBytes       int64   `json:"total_bytes"`
	Utilization      float64 `json:"utilization"`
	Performance      float64 `json:"performance"`
	AccessEfficiency float64 `json:"access_efficiency"`
	CostEfficiency   float64 `json:"cost_efficiency"`
	HealthScore      float64 `json:"health_score"`
}

// TierAnalytics is a read-only snapshot of tiering state, refreshed by the
// background pass and computable on demand. All four tiers are always
// present in Tiers.
type TierAnalytics struct {
	GeneratedAt         time.Time                 `json:"generated_at"`
	TotalEntries        int                       `json:"total_entries"`
	Tiers               map[string]TierStatistics `json:"tiers"`
	MigrationsCompleted int64                     `json:"migrations_completed"`
	MigrationFailures   int64                     `json:"migration_failures"`
	PredictedMigrations []PredictedMigration      `json:"predicted_migrations,omitempty"`
	Recommendations     []string                  `json:"recommendations,omitempty"`
}

// TierReport is the full exportable report: analytics plus configuration
// and migration history.
type TierReport struct {
	GeneratedAt      time.Time                    `json:"generated_at"`
	Analytics        TierAnalytics                `json:"analytics"`
	Configurations   map[string]TierConfiguration `json:"configurations"`
	MigrationHistory map[string][]MigrationRecord `json:"migration_history,omitempty"`
}

// accessEfficiencyHorizon is the window within which an entry counts as
// actively accessed for tier efficiency accounting.
const accessEfficiencyHorizon = 7 * 24 * time.Hour

// computeAnalytics builds the analytics snapshot from the entry registry,
// tracker and tier configurations. It reads only in-memory state.
func (e *TieringEngine) computeAnalytics() TierAnalytics {
	now := e.clock.Now()
	entries := e.entriesSnapshot()

	counts := make(map[StorageTier]int, len(AllTiers))
	bytes := make(map[StorageTier]int64, len(AllTiers))
	active := make(map[StorageTier]int, len(AllTiers))
	for _, entry := range entries {
		counts[entry.StorageTier]++
		bytes[entry.StorageTier] += entry.Size
		if info, ok := e.tracker.Get(entry.Key); ok && info.LastAccess != nil {
			if now.Sub(*info.LastAccess) <= accessEfficiencyHorizon {
				active[entry.StorageTier]++
			}
		}
	}

	utilization := make(map[StorageTier]float64, len(AllTiers))
	performance := make(map[StorageTier]float64, len(AllTiers))
	efficiency := make(map[StorageTier]float64, len(AllTiers))
	for _, tier := range AllTiers {
		cfg := e.tierConfigs.Get(tier)
		if cfg.CapacityBytes > 0 {
			utilization[tier] = math.Min(1, float64(bytes[tier])/float64(cfg.CapacityBytes))
		}
		performance[tier] = e.tierPerformance(tier)
		if counts[tier] > 0 {
			efficiency[tier] = float64(active[tier]) / float64(counts[tier])
		} else {
			efficiency[tier] = 1 // an empty tier wastes nothing
		}
	}
	health := ComputeHealthScores(performance, utilization, efficiency)

	analytics := TierAnalytics{
		GeneratedAt:         now,
		TotalEntries:        len(entries),
		Tiers:               make(map[string]TierStatistics, len(AllTiers)),
		MigrationsCompleted: e.migrationsCompleted.Load(),
		MigrationFailures:   e.migrationFailures.Load(),
	}
	for _, tier := range AllTiers {
		analytics.Tiers[tier.String()] = TierStatistics{
			EntryCount:       counts[tier],
			TotalBytes:       bytes[tier],
			Utilization:      utilization[tier],
			Performance:      performance[tier],
			AccessEfficiency: efficiency[tier],
			CostEfficiency:   math.Min(1, efficiency[tier]/tier.CostScore()),
			HealthScore:      health[tier],
		}
	}

	e.mu.RLock()
	analytics.PredictedMigrations = append([]PredictedMigration(nil), e.predictions...)
	e.mu.RUnlock()

	analytics.Recommendations = e.recommendations(analytics)
	return analytics
}

// tierPerformance returns the measured performance of a tier when a
// metrics sink has one, otherwise the configured profile baseline.
func (e *TieringEngine) tierPerformance(tier StorageTier) float64 {
	if e.metrics != nil {
		if perf, ok := e.metrics.TierPerformance(tier); ok {
			return perf
		}
	}
	return e.tierConfigs.Get(tier).PerformanceProfile.Score()
}

// recommendations derives operator-facing suggestions from the snapshot.
// They are advisory only; nothing acts on them automatically.
func (e *TieringEngine) recommendations(analytics TierAnalytics) []string {
	var recs []string
	for _, tier := range AllTiers {
		stats := analytics.Tiers[tier.String()]
		if stats.Utilization > utilizationHighWater {
			recs = append(recs, fmt.Sprintf(
				"%s tier at %.0f%% capacity; demote entries or raise compression",
				tier, stats.Utilization*100))
		}
		if stats.HealthScore < 0.5 {
			recs = append(recs, fmt.Sprintf(
				"%s tier health %.2f; review configuration and access efficiency",
				tier, stats.HealthScore))
		}
	}
	if n := len(analytics.PredictedMigrations); n > 0 {
		recs = append(recs, fmt.Sprintf("%d tier changes predicted within the horizon", n))
	}
	return recs
}

// ExportTierReport serializes the full tiering report (analytics,
// configurations, migration history) for external consumption.
func (e *TieringEngine) ExportTierReport() ([]byte, error) {
	configs := make(map[string]TierConfiguration, len(AllTiers))
	for tier, cfg := range e.tierConfigs.All() {
		configs[tier.String()] = cfg
	}
	report := TierReport{
		GeneratedAt:      e.clock.Now(),
		Analytics:        e.computeAnalytics(),
		Configurations:   configs,
		MigrationHistory: e.tracker.MigrationHistory(),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tier report: %w", err)
	}
	return data, nil
}
