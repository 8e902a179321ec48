package strata

import (
	"math"
	"strings"
	"time"
)

// ContextClassifier maps semantic context and tag terms to a tier hint.
// The boolean reports whether any term matched; when nothing matches the
// scoring engine falls back to the warm default. The heuristic is
// pluggable so a configurable or learned ruleset can replace it without
// touching the scoring engine.
type ContextClassifier func(terms []string) (StorageTier, bool)

// DefaultContextClassifier is the built-in keyword heuristic: urgency
// keywords imply hot, recency/importance keywords imply warm, archival
// keywords imply cold.
func DefaultContextClassifier(terms []string) (StorageTier, bool) {
	best := TierCold
	matched := false
	for _, term := range terms {
		term = strings.ToLower(term)
		var hint StorageTier
		switch {
		case strings.Contains(term, "urgent"),
			strings.Contains(term, "critical"),
			strings.Contains(term, "realtime"),
			strings.Contains(term, "live"),
			strings.Contains(term, "active"):
			hint = TierHot
		case strings.Contains(term, "recent"),
			strings.Contains(term, "important"),
			strings.Contains(term, "current"):
			hint = TierWarm
		case strings.Contains(term, "archive"),
			strings.Contains(term, "backup"),
			strings.Contains(term, "historical"),
			strings.Contains(term, "stale"):
			hint = TierCold
		default:
			continue
		}
		matched = true
		best = best.Min(hint)
	}
	return best, matched
}

// ScoringPolicy holds the weights, thresholds and horizons of the tier
// scoring model. Defaults reproduce the tuned source behavior; they are
// exposed for overriding, not re-derivation.
type ScoringPolicy struct {
	TemporalWeight float64 `json:"temporal_weight" yaml:"temporal_weight"`
	AgeWeight      float64 `json:"age_weight" yaml:"age_weight"`
	AccessWeight   float64 `json:"access_weight" yaml:"access_weight"`
	RecencyWeight  float64 `json:"recency_weight" yaml:"recency_weight"`
	PriorityWeight float64 `json:"priority_weight" yaml:"priority_weight"`

	// Score thresholds mapping the overall score to a tier. Anything
	// below CoolThreshold lands in the cold tier.
	HotThreshold  float64 `json:"hot_threshold" yaml:"hot_threshold"`
	WarmThreshold float64 `json:"warm_threshold" yaml:"warm_threshold"`
	CoolThreshold float64 `json:"cool_threshold" yaml:"cool_threshold"`

	// AgeHorizon is the linear age decay span; AccessSaturation the total
	// access count at which the access score reaches 1; RecencyHorizon
	// the span over which the recency score decays to 0.
	AgeHorizon       time.Duration `json:"age_horizon" yaml:"age_horizon"`
	AccessSaturation int           `json:"access_saturation" yaml:"access_saturation"`
	RecencyHorizon   time.Duration `json:"recency_horizon" yaml:"recency_horizon"`

	// Expiration grading for initial placement: expiry within Imminent
	// implies hot, within Near warm, within Far cool, beyond Far (or no
	// expiry) cold.
	ExpiryImminent time.Duration `json:"expiry_imminent" yaml:"expiry_imminent"`
	ExpiryNear     time.Duration `json:"expiry_near" yaml:"expiry_near"`
	ExpiryFar      time.Duration `json:"expiry_far" yaml:"expiry_far"`
}

// DefaultScoringPolicy returns the default scoring policy.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		TemporalWeight:   0.30,
		AgeWeight:        0.25,
		AccessWeight:     0.25,
		RecencyWeight:    0.15,
		PriorityWeight:   0.05,
		HotThreshold:     0.8,
		WarmThreshold:    0.6,
		CoolThreshold:    0.3,
		AgeHorizon:       365 * 24 * time.Hour,
		AccessSaturation: 100,
		RecencyHorizon:   30 * 24 * time.Hour,
		ExpiryImminent:   7 * 24 * time.Hour,
		ExpiryNear:       30 * 24 * time.Hour,
		ExpiryFar:        90 * 24 * time.Hour,
	}
}

// TierScoringEngine computes initial placement for new writes and the
// optimal tier for existing entries. All methods are pure reads over the
// supplied data and safe for concurrent use.
type TierScoringEngine struct {
	policy     ScoringPolicy
	classifier ContextClassifier
	analyzer   *TemporalAnalyzer
	now        func() time.Time
}

// NewTierScoringEngine creates a scoring engine. A nil classifier uses
// DefaultContextClassifier.
func NewTierScoringEngine(policy ScoringPolicy, classifier ContextClassifier, analyzer *TemporalAnalyzer) *TierScoringEngine {
	if classifier == nil {
		classifier = DefaultContextClassifier
	}
	if analyzer == nil {
		analyzer = NewTemporalAnalyzer(DefaultPredictorConfig())
	}
	return &TierScoringEngine{
		policy:     policy,
		classifier: classifier,
		analyzer:   analyzer,
		now:        time.Now,
	}
}

// DetermineTier computes the initial tier for newly written data from
// three independent signals (priority, context keywords, expiration) and
// returns the most performance-oriented of them. New data is promoted,
// never under-provisioned.
func (e *TierScoringEngine) DetermineTier(meta StorageMetadata) StorageTier {
	byPriority := e.priorityTier(meta.Priority)
	byContext := e.contextTier(meta)
	byExpiry := e.expiryTier(meta.ExpirationDate)
	return byPriority.Min(byContext).Min(byExpiry)
}

func (e *TierScoringEngine) priorityTier(p Priority) StorageTier {
	switch p {
	case PriorityCritical:
		return TierHot
	case PriorityHigh:
		return TierWarm
	case PriorityMedium:
		return TierCool
	default:
		return TierCold
	}
}

func (e *TierScoringEngine) contextTier(meta StorageMetadata) StorageTier {
	terms := make([]string, 0, len(meta.SemanticContext)+len(meta.Tags))
	terms = append(terms, meta.SemanticContext...)
	terms = append(terms, meta.Tags...)
	if tier, ok := e.classifier(terms); ok {
		return tier
	}
	return TierWarm
}

func (e *TierScoringEngine) expiryTier(expiry *time.Time) StorageTier {
	if expiry == nil {
		return TierCold
	}
	until := expiry.Sub(e.now())
	switch {
	case until <= e.policy.ExpiryImminent:
		return TierHot
	case until <= e.policy.ExpiryNear:
		return TierWarm
	case until <= e.policy.ExpiryFar:
		return TierCool
	default:
		return TierCold
	}
}

// OptimalScore computes the overall placement score in [0,1] for an
// existing entry from its age, access pattern and priority.
func (e *TierScoringEngine) OptimalScore(entry *StorageEntry, info *AccessInfo) float64 {
	now := e.now()

	temporal := e.analyzer.AnalyzeTemporalPattern(info)

	ageDays := now.Sub(entry.CreatedAt).Hours() / 24
	horizonDays := e.policy.AgeHorizon.Hours() / 24
	age := math.Max(0, 1-ageDays/horizonDays)

	access := 0.0
	recency := 0.0
	priority := entry.Metadata.Priority.Score()
	if info != nil {
		access = math.Min(1, float64(info.TotalAccesses)/float64(e.policy.AccessSaturation))
		if info.LastAccess != nil {
			sinceDays := now.Sub(*info.LastAccess).Hours() / 24
			recencyDays := e.policy.RecencyHorizon.Hours() / 24
			recency = math.Max(0, 1-sinceDays/recencyDays)
		}
	}

	return e.policy.TemporalWeight*temporal +
		e.policy.AgeWeight*age +
		e.policy.AccessWeight*access +
		e.policy.RecencyWeight*recency +
		e.policy.PriorityWeight*priority
}

// CalculateOptimalTier maps the overall score to a tier through the
// policy thresholds.
func (e *TierScoringEngine) CalculateOptimalTier(entry *StorageEntry, info *AccessInfo) StorageTier {
	score := e.OptimalScore(entry, info)
	switch {
	case score >= e.policy.HotThreshold:
		return TierHot
	case score >= e.policy.WarmThreshold:
		return TierWarm
	case score >= e.policy.CoolThreshold:
		return TierCool
	default:
		return TierCold
	}
}

// ShouldMigrateTier reports whether the entry's current tier differs from
// its optimal tier.
func (e *TierScoringEngine) ShouldMigrateTier(entry *StorageEntry, info *AccessInfo) bool {
	return e.CalculateOptimalTier(entry, info) != entry.StorageTier
}
