package strata

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// CompressionLevel is the per-tier compression setting, ordinal 0-3.
type CompressionLevel int

const (
	CompressionNone CompressionLevel = iota
	CompressionLow
	CompressionHigh
	CompressionMaximum
)

// String returns the human-readable name of the compression level.
func (c CompressionLevel) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLow:
		return "low"
	case CompressionHigh:
		return "high"
	case CompressionMaximum:
		return "maximum"
	default:
		return "unknown"
	}
}

// CacheStrategy is the per-tier caching setting, ordinal 0-3.
type CacheStrategy int

const (
	CacheNone CacheStrategy = iota
	CacheMinimal
	CacheModerate
	CacheAggressive
)

// String returns the human-readable name of the cache strategy.
func (c CacheStrategy) String() string {
	switch c {
	case CacheNone:
		return "none"
	case CacheMinimal:
		return "minimal"
	case CacheModerate:
		return "moderate"
	case CacheAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// PerformanceProfile describes the speed class a tier is provisioned for.
type PerformanceProfile int

const (
	PerfArchival PerformanceProfile = iota
	PerfStandard
	PerfHigh
	PerfMaximum
)

// Score maps the profile to a baseline performance score in [0,1], used
// when no measured performance is available.
func (p PerformanceProfile) Score() float64 {
	switch p {
	case PerfMaximum:
		return 1.0
	case PerfHigh:
		return 0.7
	case PerfStandard:
		return 0.4
	default:
		return 0.1
	}
}

// CostProfile describes the cost class of a tier.
type CostProfile int

const (
	CostMinimal CostProfile = iota
	CostLow
	CostModerate
	CostHigh
)

// RetentionPolicy selects how entries in a tier are retired.
type RetentionPolicy int

const (
	RetentionAccessBased RetentionPolicy = iota
	RetentionAgeBased
	RetentionManual
)

// TierConfiguration is the per-tier operational policy. It is mutated
// only by OptimizeTierConfigurations.
type TierConfiguration struct {
	CompressionLevel   CompressionLevel   `json:"compression_level"`
	CacheStrategy      CacheStrategy      `json:"cache_strategy"`
	PerformanceProfile PerformanceProfile `json:"performance_profile"`
	CostProfile        CostProfile        `json:"cost_profile"`
	RetentionPolicy    RetentionPolicy    `json:"retention_policy"`

	// CapacityBytes is the tier's nominal capacity for utilization
	// accounting. 0 means unbounded.
	CapacityBytes int64 `json:"capacity_bytes"`
}

// DefaultTierConfigurations returns the default operational policy for
// all four tiers.
func DefaultTierConfigurations() map[StorageTier]TierConfiguration {
	return map[StorageTier]TierConfiguration{
		TierHot: {
			CompressionLevel:   CompressionNone,
			CacheStrategy:      CacheAggressive,
			PerformanceProfile: PerfMaximum,
			CostProfile:        CostHigh,
			RetentionPolicy:    RetentionAccessBased,
			CapacityBytes:      10 << 30,
		},
		TierWarm: {
			CompressionLevel:   CompressionLow,
			CacheStrategy:      CacheModerate,
			PerformanceProfile: PerfHigh,
			CostProfile:        CostModerate,
			RetentionPolicy:    RetentionAccessBased,
			CapacityBytes:      100 << 30,
		},
		TierCool: {
			CompressionLevel:   CompressionHigh,
			CacheStrategy:      CacheMinimal,
			PerformanceProfile: PerfStandard,
			CostProfile:        CostLow,
			RetentionPolicy:    RetentionAgeBased,
			CapacityBytes:      1 << 40,
		},
		TierCold: {
			CompressionLevel:   CompressionMaximum,
			CacheStrategy:      CacheNone,
			PerformanceProfile: PerfArchival,
			CostProfile:        CostMinimal,
			RetentionPolicy:    RetentionManual,
			CapacityBytes:      0,
		},
	}
}

// Adaptive tuning thresholds. Adjustments are one ordinal step per pass,
// bounded to the valid range, so configurations drift rather than jump.
const (
	utilizationHighWater = 0.8
	utilizationLowWater  = 0.3
	performanceLowWater  = 0.5
)

// MetricsSink supplies observed per-tier performance to the engine. When
// no sink is configured (or a tier has no observation) the tier's
// performance profile baseline is used instead.
type MetricsSink interface {
	// TierPerformance returns the observed performance of a tier
	// normalized to [0,1], and whether an observation exists.
	TierPerformance(tier StorageTier) (float64, bool)
}

// TierConfigManager holds per-tier operational parameters and adaptively
// tunes them from observed utilization and performance. All four tiers
// are always present; this is validated at construction.
type TierConfigManager struct {
	mu      sync.RWMutex
	configs map[StorageTier]TierConfiguration
}

// NewTierConfigManager creates a manager with the given configurations.
// A nil map uses the defaults. Missing tiers are an error.
func NewTierConfigManager(configs map[StorageTier]TierConfiguration) (*TierConfigManager, error) {
	if configs == nil {
		configs = DefaultTierConfigurations()
	}
	for _, tier := range AllTiers {
		if _, ok := configs[tier]; !ok {
			return nil, fmt.Errorf("tier configuration missing for %s tier", tier)
		}
	}
	copied := make(map[StorageTier]TierConfiguration, len(configs))
	for tier, cfg := range configs {
		copied[tier] = cfg
	}
	return &TierConfigManager{configs: copied}, nil
}

// Get returns the configuration for a tier.
func (m *TierConfigManager) Get(tier StorageTier) TierConfiguration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configs[tier]
}

// All returns a copy of every tier's configuration.
func (m *TierConfigManager) All() map[StorageTier]TierConfiguration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[StorageTier]TierConfiguration, len(m.configs))
	for tier, cfg := range m.configs {
		out[tier] = cfg
	}
	return out
}

// Optimize nudges each tier's configuration one step from observed
// utilization and performance: compression goes up above the utilization
// high water and down below the low water; the cache strategy escalates
// when measured performance is poor.
func (m *TierConfigManager) Optimize(utilization, performance map[StorageTier]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tier := range AllTiers {
		cfg := m.configs[tier]

		if util, ok := utilization[tier]; ok {
			if util > utilizationHighWater && cfg.CompressionLevel < CompressionMaximum {
				cfg.CompressionLevel++
			} else if util < utilizationLowWater && cfg.CompressionLevel > CompressionNone {
				cfg.CompressionLevel--
			}
		}
		if perf, ok := performance[tier]; ok {
			if perf < performanceLowWater && cfg.CacheStrategy < CacheAggressive {
				cfg.CacheStrategy++
			}
		}

		m.configs[tier] = cfg
	}
}

// ComputeHealthScores combines performance, utilization headroom and
// access efficiency into a per-tier health score. Health is advisory
// only; nothing acts on it automatically.
func ComputeHealthScores(performance, utilization, accessEfficiency map[StorageTier]float64) map[StorageTier]float64 {
	health := make(map[StorageTier]float64, len(AllTiers))
	for _, tier := range AllTiers {
		health[tier] = 0.4*performance[tier] + 0.3*(1-utilization[tier]) + 0.3*accessEfficiency[tier]
	}
	return health
}

// Snapshot serializes the tier configurations keyed by tier name.
func (m *TierConfigManager) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	named := make(map[string]TierConfiguration, len(m.configs))
	for tier, cfg := range m.configs {
		named[tier.String()] = cfg
	}
	return json.MarshalIndent(named, "", "  ")
}

// LoadSnapshot replaces the configurations with a previously serialized
// snapshot. Unknown tier names are an error and leave the manager
// untouched; missing tiers keep their current configuration.
func (m *TierConfigManager) LoadSnapshot(data []byte) error {
	named := make(map[string]TierConfiguration)
	if err := json.Unmarshal(data, &named); err != nil {
		return fmt.Errorf("decode tier configuration snapshot: %w", err)
	}

	staged := make(map[StorageTier]TierConfiguration, len(named))
	for name, cfg := range named {
		tier, err := ParseTier(name)
		if err != nil {
			return err
		}
		staged[tier] = cfg
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for tier, cfg := range staged {
		m.configs[tier] = cfg
	}
	return nil
}

// Config configures the tiering engine.
type Config struct {
	// Root is the directory holding the tier layout and persisted state.
	Root string

	// EvaluationInterval is the background pass cadence. Default: 1 hour.
	EvaluationInterval time.Duration

	// PredictionHorizon is the lookahead for the cached migration
	// predictions refreshed by the background pass. Default: 7 days.
	PredictionHorizon time.Duration

	// Scoring, Planner, Tracker and Predictor carry the policy constants.
	Scoring   ScoringPolicy
	Planner   PlannerPolicy
	Tracker   TrackerConfig
	Predictor PredictorConfig

	// TierConfigurations overrides the per-tier operational defaults.
	TierConfigurations map[StorageTier]TierConfiguration

	// Encryption, when enabled, encrypts persisted tracker and
	// configuration state at rest.
	Encryption *EncryptionConfig

	// Substrate overrides the default file substrate rooted under Root.
	Substrate Substrate

	// Metrics optionally supplies observed per-tier performance.
	Metrics MetricsSink

	// Classifier overrides the keyword heuristic for context tier hints.
	Classifier ContextClassifier

	// Clock overrides the real-time clock, mainly for tests.
	Clock Clock

	// Logger overrides the standard logger.
	Logger *log.Logger
}

// DefaultConfig returns an engine configuration with default policies.
func DefaultConfig(root string) Config {
	return Config{
		Root:               root,
		EvaluationInterval: time.Hour,
		PredictionHorizon:  7 * 24 * time.Hour,
		Scoring:            DefaultScoringPolicy(),
		Planner:            DefaultPlannerPolicy(),
		Tracker:            DefaultTrackerConfig(),
		Predictor:          DefaultPredictorConfig(),
	}
}

// fileConfig is the YAML shape of a config file. Durations are strings in
// Go duration syntax.
type fileConfig struct {
	Root               string `yaml:"root"`
	EvaluationInterval string `yaml:"evaluation_interval"`
	PredictionHorizon  string `yaml:"prediction_horizon"`

	Tracker struct {
		MaxWindowEntries int    `yaml:"max_window_entries"`
		WindowDuration   string `yaml:"window_duration"`
	} `yaml:"tracker"`

	Encryption *struct {
		Enabled     bool   `yaml:"enabled"`
		KeyPassword string `yaml:"key_password"`
	} `yaml:"encryption"`
}

// LoadConfigFile reads an engine configuration from a YAML file. Fields
// not present keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := DefaultConfig(fc.Root)
	if fc.EvaluationInterval != "" {
		d, err := time.ParseDuration(fc.EvaluationInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse evaluation_interval: %w", err)
		}
		cfg.EvaluationInterval = d
	}
	if fc.PredictionHorizon != "" {
		d, err := time.ParseDuration(fc.PredictionHorizon)
		if err != nil {
			return Config{}, fmt.Errorf("parse prediction_horizon: %w", err)
		}
		cfg.PredictionHorizon = d
	}
	if fc.Tracker.MaxWindowEntries > 0 {
		cfg.Tracker.MaxWindowEntries = fc.Tracker.MaxWindowEntries
	}
	if fc.Tracker.WindowDuration != "" {
		d, err := time.ParseDuration(fc.Tracker.WindowDuration)
		if err != nil {
			return Config{}, fmt.Errorf("parse tracker window_duration: %w", err)
		}
		cfg.Tracker.WindowDuration = d
	}
	if fc.Encryption != nil {
		cfg.Encryption = &EncryptionConfig{
			Enabled:     fc.Encryption.Enabled,
			KeyPassword: fc.Encryption.KeyPassword,
		}
	}
	return cfg, nil
}
