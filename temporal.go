package strata

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PredictorConfig configures temporal analysis and access prediction.
// The defaults are policy constants carried over from the tuned source
// behavior; overriding them changes placement decisions.
type PredictorConfig struct {
	// RecentWindow is the lookback used when computing access rates.
	RecentWindow time.Duration `json:"recent_window" yaml:"recent_window"`

	// MinSamples is the minimum number of recent accesses required to
	// produce a prediction at all.
	MinSamples int `json:"min_samples" yaml:"min_samples"`

	// ConfidenceSaturation is the recent-access count at which prediction
	// confidence reaches 1.0.
	ConfidenceSaturation int `json:"confidence_saturation" yaml:"confidence_saturation"`

	// MaxPredictions bounds the number of predicted migrations retained.
	MaxPredictions int `json:"max_predictions" yaml:"max_predictions"`

	// RegularityWeight and RecencyWeight blend interval regularity with
	// the recency boost in the temporal score.
	RegularityWeight float64 `json:"regularity_weight" yaml:"regularity_weight"`
	RecencyWeight    float64 `json:"recency_weight" yaml:"recency_weight"`

	// RecencyHorizon normalizes the recency boost.
	RecencyHorizon time.Duration `json:"recency_horizon" yaml:"recency_horizon"`

	// ExpectedHot and ExpectedWarm are the projected-access thresholds
	// above which a key is predicted to belong in the hot or warm tier.
	// Any positive projection below ExpectedWarm predicts cool.
	ExpectedHot  float64 `json:"expected_hot" yaml:"expected_hot"`
	ExpectedWarm float64 `json:"expected_warm" yaml:"expected_warm"`
}

// DefaultPredictorConfig returns the default prediction policy.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		RecentWindow:         30 * 24 * time.Hour,
		MinSamples:           2,
		ConfidenceSaturation: 10,
		MaxPredictions:       50,
		RegularityWeight:     0.7,
		RecencyWeight:        0.3,
		RecencyHorizon:       7 * 24 * time.Hour,
		ExpectedHot:          10,
		ExpectedWarm:         3,
	}
}

// AccessPrediction projects future access volume for a key over a time
// horizon. A nil prediction means "no prediction", never "no change".
type AccessPrediction struct {
	// AccessRate is the observed rate in accesses per day.
	AccessRate float64 `json:"access_rate"`

	// ExpectedAccesses is the projected access count over the horizon.
	ExpectedAccesses float64 `json:"expected_accesses"`

	// Confidence grows with the number of recent samples, saturating at 1.
	Confidence float64 `json:"confidence"`

	// TimeToChange is a coarse midpoint placeholder (horizon/2), not a
	// trend-inflection estimate.
	TimeToChange time.Duration `json:"time_to_change"`
}

// PredictedMigration is a forecast tier change for a tracked entry.
type PredictedMigration struct {
	EntryKey      string      `json:"entry_key"`
	CurrentTier   StorageTier `json:"current_tier"`
	PredictedTier StorageTier `json:"predicted_tier"`
	Confidence    float64     `json:"confidence"`
	EstimatedDate time.Time   `json:"estimated_date"`
	Reason        string      `json:"reason"`
}

// TemporalAnalyzer scores the regularity and recency of access patterns
// and projects future access volume.
type TemporalAnalyzer struct {
	config PredictorConfig
	now    func() time.Time
}

// NewTemporalAnalyzer creates an analyzer with the given policy.
func NewTemporalAnalyzer(config PredictorConfig) *TemporalAnalyzer {
	if config.RecentWindow <= 0 {
		config.RecentWindow = 30 * 24 * time.Hour
	}
	if config.MinSamples < 2 {
		config.MinSamples = 2
	}
	if config.ConfidenceSaturation <= 0 {
		config.ConfidenceSaturation = 10
	}
	if config.MaxPredictions <= 0 {
		config.MaxPredictions = 50
	}
	if config.RecencyHorizon <= 0 {
		config.RecencyHorizon = 7 * 24 * time.Hour
	}
	if config.RegularityWeight <= 0 && config.RecencyWeight <= 0 {
		config.RegularityWeight = 0.7
		config.RecencyWeight = 0.3
	}
	return &TemporalAnalyzer{config: config, now: time.Now}
}

// AnalyzeTemporalPattern returns a score in [0,1] combining the
// regularity of inter-access intervals with a recency boost. Fewer than
// two accesses yield 0.
func (a *TemporalAnalyzer) AnalyzeTemporalPattern(info *AccessInfo) float64 {
	if info == nil || len(info.AccessTimes) < 2 {
		return 0
	}

	times := append([]time.Time(nil), info.AccessTimes...)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}

	var sum float64
	for _, v := range intervals {
		sum += v
	}
	mean := sum / float64(len(intervals))

	regularity := 0.0
	if mean > 0 {
		var variance float64
		for _, v := range intervals {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(intervals))
		regularity = math.Max(0, 1-math.Sqrt(variance)/mean)
	}

	recency := 0.0
	if info.LastAccess != nil {
		since := a.now().Sub(*info.LastAccess)
		recency = math.Max(0, 1-float64(since)/float64(a.config.RecencyHorizon))
	}

	return a.config.RegularityWeight*regularity + a.config.RecencyWeight*recency
}

// PredictAccessPattern projects access volume over the horizon from the
// recent access window. It returns nil when fewer than MinSamples recent
// accesses exist; callers must treat nil as "no prediction".
func (a *TemporalAnalyzer) PredictAccessPattern(info *AccessInfo, horizon time.Duration) *AccessPrediction {
	if info == nil || horizon <= 0 {
		return nil
	}

	cutoff := a.now().Add(-a.config.RecentWindow)
	recent := 0
	for _, ts := range info.AccessTimes {
		if ts.After(cutoff) {
			recent++
		}
	}
	if recent < a.config.MinSamples {
		return nil
	}

	windowDays := a.config.RecentWindow.Hours() / 24
	rate := float64(recent) / windowDays
	horizonDays := horizon.Hours() / 24

	return &AccessPrediction{
		AccessRate:       rate,
		ExpectedAccesses: rate * horizonDays,
		Confidence:       math.Min(1, float64(recent)/float64(a.config.ConfidenceSaturation)),
		TimeToChange:     horizon / 2,
	}
}

// tierForExpectedAccesses maps a projected access count to a tier.
func (a *TemporalAnalyzer) tierForExpectedAccesses(expected float64) StorageTier {
	switch {
	case expected > a.config.ExpectedHot:
		return TierHot
	case expected > a.config.ExpectedWarm:
		return TierWarm
	case expected > 0:
		return TierCool
	default:
		return TierCold
	}
}

// PredictMigrations forecasts tier changes for every entry whose projected
// access volume implies a different tier. Results are sorted by confidence
// descending and truncated to MaxPredictions.
func (a *TemporalAnalyzer) PredictMigrations(entries []*StorageEntry, lookup func(key string) (AccessInfo, bool), horizon time.Duration) []PredictedMigration {
	var out []PredictedMigration
	for _, entry := range entries {
		info, ok := lookup(entry.Key)
		if !ok {
			continue
		}
		pred := a.PredictAccessPattern(&info, horizon)
		if pred == nil {
			continue
		}
		predicted := a.tierForExpectedAccesses(pred.ExpectedAccesses)
		if predicted == entry.StorageTier {
			continue
		}
		out = append(out, PredictedMigration{
			EntryKey:      entry.Key,
			CurrentTier:   entry.StorageTier,
			PredictedTier: predicted,
			Confidence:    pred.Confidence,
			EstimatedDate: a.now().Add(pred.TimeToChange),
			Reason: fmt.Sprintf("expected %.1f accesses over %s at %.2f/day",
				pred.ExpectedAccesses, horizon.Round(time.Hour), pred.AccessRate),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].EntryKey < out[j].EntryKey
	})
	if len(out) > a.config.MaxPredictions {
		out = out[:a.config.MaxPredictions]
	}
	return out
}
