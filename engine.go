package strata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrEntryNotFound is returned when a key is not tracked by the engine.
var ErrEntryNotFound = errors.New("entry not found")

// Persisted state files under the engine root.
const (
	accessPatternsFile = "access_patterns.json"
	tierConfigsFile    = "tier_configurations.json"
)

// TieringEngine decides which tier every stored entry should live in,
// re-evaluates placement as access patterns evolve, and migrates entries
// between tiers. Tiering is an optimization, not a correctness-critical
// path: the engine degrades to defaults rather than failing hard, and
// callers can always read and write entries even with tiering disabled.
type TieringEngine struct {
	cfg         Config
	substrate   Substrate
	tracker     *AccessPatternTracker
	scoring     *TierScoringEngine
	analyzer    *TemporalAnalyzer
	planner     *MigrationPlanner
	executor    *MigrationExecutor
	tierConfigs *TierConfigManager
	metrics     MetricsSink
	encryptor   Encryptor
	clock       Clock
	logger      *log.Logger

	mu          sync.RWMutex
	entries     map[string]*StorageEntry
	predictions []PredictedMigration
	statsCb     func(TierAnalytics)
	running     bool
	cancel      context.CancelFunc
	loopDone    chan struct{}

	// migrating gates PerformTierMigration to a single in-flight pass;
	// a second trigger while one runs is a no-op, not a queued retry.
	migrating           atomic.Bool
	migrationsCompleted atomic.Int64
	migrationFailures   atomic.Int64
}

// New creates a tiering engine. Persisted tracker and configuration state
// under cfg.Root is loaded if present; corrupt or unreadable state falls
// back to empty/default, never failing startup.
func New(cfg Config) (*TieringEngine, error) {
	if cfg.Root == "" && cfg.Substrate == nil {
		return nil, errors.New("either a root directory or a substrate is required")
	}
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = time.Hour
	}
	if cfg.PredictionHorizon <= 0 {
		cfg.PredictionHorizon = 7 * 24 * time.Hour
	}
	if cfg.Scoring == (ScoringPolicy{}) {
		cfg.Scoring = DefaultScoringPolicy()
	}
	if cfg.Planner == (PlannerPolicy{}) {
		cfg.Planner = DefaultPlannerPolicy()
	}
	if cfg.Tracker == (TrackerConfig{}) {
		cfg.Tracker = DefaultTrackerConfig()
	}
	if cfg.Predictor == (PredictorConfig{}) {
		cfg.Predictor = DefaultPredictorConfig()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	substrate := cfg.Substrate
	if substrate == nil {
		fs, err := NewFileSubstrate(filepath.Join(cfg.Root, "tiers"))
		if err != nil {
			return nil, fmt.Errorf("create tier layout: %w", err)
		}
		substrate = fs
	}

	var encryptor Encryptor
	if cfg.Encryption != nil {
		enc, err := NewEncryptor(*cfg.Encryption)
		if err != nil {
			return nil, fmt.Errorf("configure encryption: %w", err)
		}
		encryptor = enc
	}

	tracker := NewAccessPatternTracker(cfg.Tracker)
	tracker.now = clock.Now

	analyzer := NewTemporalAnalyzer(cfg.Predictor)
	analyzer.now = clock.Now

	scoring := NewTierScoringEngine(cfg.Scoring, cfg.Classifier, analyzer)
	scoring.now = clock.Now

	planner := NewMigrationPlanner(scoring, tracker, cfg.Planner)
	planner.now = clock.Now

	tierConfigs, err := NewTierConfigManager(cfg.TierConfigurations)
	if err != nil {
		return nil, err
	}

	e := &TieringEngine{
		cfg:         cfg,
		substrate:   substrate,
		tracker:     tracker,
		scoring:     scoring,
		analyzer:    analyzer,
		planner:     planner,
		executor:    NewMigrationExecutor(substrate, tracker, logger),
		tierConfigs: tierConfigs,
		metrics:     cfg.Metrics,
		encryptor:   encryptor,
		clock:       clock,
		logger:      logger,
		entries:     make(map[string]*StorageEntry),
	}
	e.loadPersistedState()
	return e, nil
}

// ---------------------------------------------------------------------------
// Placement and access
// ---------------------------------------------------------------------------

// DetermineTier computes the initial tier for newly written data.
func (e *TieringEngine) DetermineTier(meta StorageMetadata) StorageTier {
	return e.scoring.DetermineTier(meta)
}

// CalculateOptimalTier computes the tier the entry should currently live
// in from its tracked access pattern.
func (e *TieringEngine) CalculateOptimalTier(entry *StorageEntry) StorageTier {
	info, _ := e.tracker.Get(entry.Key)
	return e.scoring.CalculateOptimalTier(entry, &info)
}

// ShouldMigrateTier reports whether the entry's current tier differs from
// its optimal tier.
func (e *TieringEngine) ShouldMigrateTier(entry *StorageEntry) bool {
	return e.CalculateOptimalTier(entry) != entry.StorageTier
}

// Track registers an entry owned by the persistence layer with the
// engine. The engine only reads and updates the entry's tier.
func (e *TieringEngine) Track(entry StorageEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := entry
	e.entries[entry.Key] = &copied
}

// RecordAccess records one access to a tracked key.
func (e *TieringEngine) RecordAccess(key string) {
	e.tracker.RecordAccess(key)
}

// Entry returns a copy of the tracked entry for the key.
func (e *TieringEngine) Entry(key string) (StorageEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.entries[key]
	if !ok {
		return StorageEntry{}, false
	}
	return *entry, true
}

// Entries returns copies of all tracked entries sorted by key.
func (e *TieringEngine) Entries() []StorageEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]StorageEntry, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// entriesSnapshot returns detached copies for planning and analytics.
func (e *TieringEngine) entriesSnapshot() []*StorageEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*StorageEntry, 0, len(e.entries))
	for _, entry := range e.entries {
		copied := *entry
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Store determines the tier for the data, writes it to the substrate,
// registers the entry and records the initial access.
func (e *TieringEngine) Store(ctx context.Context, key string, data []byte, meta StorageMetadata) (StorageTier, error) {
	tier := e.scoring.DetermineTier(meta)
	if err := e.substrate.Write(ctx, tier, key, data); err != nil {
		return tier, fmt.Errorf("store %q in %s tier: %w", key, tier, err)
	}
	e.Track(StorageEntry{
		Key:         key,
		StorageTier: tier,
		CreatedAt:   e.clock.Now(),
		Size:        int64(len(data)),
		Metadata:    meta,
	})
	e.tracker.RecordAccess(key)
	return tier, nil
}

// Load reads a tracked entry from its current tier and records the access.
func (e *TieringEngine) Load(ctx context.Context, key string) ([]byte, error) {
	entry, ok := e.Entry(key)
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrEntryNotFound)
	}
	data, err := e.substrate.Read(ctx, entry.StorageTier, key)
	if err != nil {
		return nil, err
	}
	e.tracker.RecordAccess(key)
	return data, nil
}

// ---------------------------------------------------------------------------
// Migration
// ---------------------------------------------------------------------------

// CreateMigrationPlan computes the current migration plan without
// executing it.
func (e *TieringEngine) CreateMigrationPlan() []MigrationPlanItem {
	return e.planner.CreatePlan(e.entriesSnapshot())
}

// PerformTierMigration plans and executes one full migration pass. At
// most one pass runs at a time; a trigger while one is in flight is a
// silent no-op. An empty plan short-circuits with no side effects.
// Per-entry failures are absorbed into the failure counter; only a
// planning-level failure is returned as an error.
func (e *TieringEngine) PerformTierMigration(ctx context.Context) error {
	planned, err := e.migratePass(ctx)
	if err != nil || planned == 0 {
		return err
	}
	e.refreshPredictions()
	e.persistState()
	e.notifyStatsChanged()
	return nil
}

// migratePass plans and executes the moves, committing each entry's tier
// pointer as its move completes, so an entry is readable from its new
// tier while the rest of the plan is still running. It returns the
// number of planned items; the caller owns the follow-up refresh,
// persist and notify so a background tick does each exactly once.
func (e *TieringEngine) migratePass(ctx context.Context) (int, error) {
	if !e.migrating.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer e.migrating.Store(false)

	if e.tracker == nil || e.planner == nil {
		return 0, errors.New("tier migration: tracker unavailable")
	}

	plan := e.planner.CreatePlan(e.entriesSnapshot())
	if len(plan) == 0 {
		return 0, nil
	}

	report := e.executor.ExecutePlan(ctx, plan, func(item MigrationPlanItem) {
		e.mu.Lock()
		if entry, ok := e.entries[item.EntryKey]; ok {
			entry.StorageTier = item.ToTier
		}
		e.mu.Unlock()
	})

	e.migrationsCompleted.Add(int64(report.Executed))
	e.migrationFailures.Add(int64(report.Failed))
	return len(plan), nil
}

// ---------------------------------------------------------------------------
// Analytics and prediction
// ---------------------------------------------------------------------------

// GetTierAnalytics returns a consistent read-only snapshot of tier
// statistics, health scores, recommendations and cached predictions.
func (e *TieringEngine) GetTierAnalytics() TierAnalytics {
	return e.computeAnalytics()
}

// PredictFutureMigrations projects tier changes over the horizon and
// refreshes the cached predictions.
func (e *TieringEngine) PredictFutureMigrations(horizon time.Duration) []PredictedMigration {
	predicted := e.analyzer.PredictMigrations(e.entriesSnapshot(), e.tracker.Get, horizon)
	e.mu.Lock()
	e.predictions = predicted
	e.mu.Unlock()
	return append([]PredictedMigration(nil), predicted...)
}

func (e *TieringEngine) refreshPredictions() {
	e.PredictFutureMigrations(e.cfg.PredictionHorizon)
}

// OptimizeTierConfigurations runs one adaptive tuning pass over the tier
// configurations from current utilization and performance.
func (e *TieringEngine) OptimizeTierConfigurations() {
	analytics := e.computeAnalytics()
	utilization := make(map[StorageTier]float64, len(AllTiers))
	performance := make(map[StorageTier]float64, len(AllTiers))
	for _, tier := range AllTiers {
		stats := analytics.Tiers[tier.String()]
		utilization[tier] = stats.Utilization
		performance[tier] = stats.Performance
	}
	e.tierConfigs.Optimize(utilization, performance)
	e.persistState()
}

// OnStatsChanged registers a callback invoked with a fresh analytics
// snapshot after each background refresh and migration pass.
func (e *TieringEngine) OnStatsChanged(fn func(TierAnalytics)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statsCb = fn
}

func (e *TieringEngine) notifyStatsChanged() {
	e.mu.RLock()
	fn := e.statsCb
	e.mu.RUnlock()
	if fn != nil {
		fn(e.computeAnalytics())
	}
}

// ---------------------------------------------------------------------------
// Background loop
// ---------------------------------------------------------------------------

// Start launches the periodic background pass: pattern re-evaluation,
// migration, configuration tuning and prediction refresh. The loop
// supports cooperative cancellation through ctx and Stop.
func (e *TieringEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New("tiering engine already running")
	}
	e.running = true
	child, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.loopDone = make(chan struct{})

	go e.loop(child, e.loopDone)
	return nil
}

// Stop halts the background loop and waits for it to exit. An
// in-progress single-entry move is never interrupted; cancellation takes
// effect between plan items.
func (e *TieringEngine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel, done := e.cancel, e.loopDone
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (e *TieringEngine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := e.clock.NewTicker(e.cfg.EvaluationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.runPass(ctx)
		}
	}
}

// runPass is one background evaluation cycle. It drives the migration
// through migratePass rather than PerformTierMigration so the pass
// persists state and fires the stats callback once per tick, not once
// per stage.
func (e *TieringEngine) runPass(ctx context.Context) {
	if _, err := e.migratePass(ctx); err != nil {
		e.logger.Printf("strata: migration pass failed: %v", err)
	}
	e.OptimizeTierConfigurations()
	e.refreshPredictions()
	e.notifyStatsChanged()
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// loadPersistedState restores tracker and configuration state from the
// engine root. Missing files are normal; corrupt files are logged and
// replaced by empty/default state.
func (e *TieringEngine) loadPersistedState() {
	if e.cfg.Root == "" {
		return
	}

	if data, err := e.readStateFile(accessPatternsFile); err != nil {
		e.logger.Printf("strata: ignoring access pattern state: %v", err)
	} else if data != nil {
		if err := e.tracker.LoadSnapshot(data); err != nil {
			e.logger.Printf("strata: corrupt access pattern state, starting empty: %v", err)
		}
	}

	if data, err := e.readStateFile(tierConfigsFile); err != nil {
		e.logger.Printf("strata: ignoring tier configuration state: %v", err)
	} else if data != nil {
		if err := e.tierConfigs.LoadSnapshot(data); err != nil {
			e.logger.Printf("strata: corrupt tier configuration state, using defaults: %v", err)
		}
	}
}

func (e *TieringEngine) readStateFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(e.cfg.Root, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.encryptor != nil {
		return e.encryptor.Decrypt(data)
	}
	return data, nil
}

func (e *TieringEngine) writeStateFile(name string, data []byte) error {
	if e.encryptor != nil {
		enc, err := e.encryptor.Encrypt(data)
		if err != nil {
			return err
		}
		data = enc
	}
	return os.WriteFile(filepath.Join(e.cfg.Root, name), data, 0o644)
}

// persistState saves tracker and configuration snapshots after a
// mutation batch. Failures are logged, never propagated: persistence is
// an optimization for restart fidelity, not a correctness requirement.
func (e *TieringEngine) persistState() {
	if e.cfg.Root == "" {
		return
	}

	if data, err := e.tracker.Snapshot(); err != nil {
		e.logger.Printf("strata: snapshot access patterns: %v", err)
	} else if err := e.writeStateFile(accessPatternsFile, data); err != nil {
		e.logger.Printf("strata: persist access patterns: %v", err)
	}

	if data, err := e.tierConfigs.Snapshot(); err != nil {
		e.logger.Printf("strata: snapshot tier configurations: %v", err)
	} else if err := e.writeStateFile(tierConfigsFile, data); err != nil {
		e.logger.Printf("strata: persist tier configurations: %v", err)
	}
}

// Flush persists the current tracker and configuration state.
func (e *TieringEngine) Flush() {
	e.persistState()
}

// Close stops the background loop, flushes persisted state and closes
// the substrate.
func (e *TieringEngine) Close() error {
	e.Stop()
	e.persistState()
	return e.substrate.Close()
}
