package strata

import (
	"fmt"
	"time"
)

// StorageTier represents the temperature of a storage tier. Tiers are
// totally ordered by performance: Hot is the fastest and most expensive,
// Cold the slowest and cheapest. The numeric rank is load-bearing; all
// comparisons in the engine rely on it.
type StorageTier int

const (
	TierHot  StorageTier = iota // Fastest, most expensive
	TierWarm                    // Moderate speed and cost
	TierCool                    // Slow, cheaper
	TierCold                    // Slowest, cheapest
)

// AllTiers lists every tier in canonical rank order.
var AllTiers = []StorageTier{TierHot, TierWarm, TierCool, TierCold}

// String returns the human-readable name of the tier.
func (t StorageTier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCool:
		return "cool"
	case TierCold:
		return "cold"
	default:
		return "unknown"
	}
}

// ParseTier parses a tier name as produced by String.
func ParseTier(s string) (StorageTier, error) {
	switch s {
	case "hot":
		return TierHot, nil
	case "warm":
		return TierWarm, nil
	case "cool":
		return TierCool, nil
	case "cold":
		return TierCold, nil
	}
	return 0, fmt.Errorf("unknown storage tier %q", s)
}

// Min returns the more performance-oriented (lower rank) of two tiers.
func (t StorageTier) Min(other StorageTier) StorageTier {
	if other < t {
		return other
	}
	return t
}

// FasterThan reports whether t outranks other in performance.
func (t StorageTier) FasterThan(other StorageTier) bool {
	return t < other
}

// PerformanceScore returns the fixed relative performance score of the tier.
func (t StorageTier) PerformanceScore() float64 {
	switch t {
	case TierHot:
		return 1.0
	case TierWarm:
		return 0.7
	case TierCool:
		return 0.4
	default:
		return 0.1
	}
}

// CostScore returns the fixed relative cost score of the tier.
func (t StorageTier) CostScore() float64 {
	switch t {
	case TierHot:
		return 1.0
	case TierWarm:
		return 0.6
	case TierCool:
		return 0.3
	default:
		return 0.1
	}
}

// Priority classifies the importance of stored data at write time.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// String returns the human-readable name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Score returns the normalized weight of the priority used in tier scoring.
func (p Priority) Score() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.75
	case PriorityMedium:
		return 0.5
	default:
		return 0.25
	}
}

// StorageMetadata is the immutable descriptor supplied at write time.
// It is used only to pick the initial tier and is never mutated.
type StorageMetadata struct {
	Priority        Priority   `json:"priority"`
	SemanticContext []string   `json:"semantic_context,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	ExpirationDate  *time.Time `json:"expiration_date,omitempty"`
}

// StorageEntry is a tracked item. The persistence substrate owns the
// entry's bytes; the tiering engine only reads and updates StorageTier.
type StorageEntry struct {
	Key         string          `json:"key"`
	StorageTier StorageTier     `json:"storage_tier"`
	CreatedAt   time.Time       `json:"created_at"`
	Size        int64           `json:"size,omitempty"`
	Metadata    StorageMetadata `json:"metadata"`
}

// MigrationRecord records one completed move between tiers. Records are
// append-only on an entry's migration history.
type MigrationRecord struct {
	FromTier  StorageTier `json:"from_tier"`
	ToTier    StorageTier `json:"to_tier"`
	Timestamp time.Time   `json:"timestamp"`
}
