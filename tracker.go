package strata

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TrackerConfig bounds the per-key access timestamp window so scoring
// stays O(1) amortized per key.
type TrackerConfig struct {
	// MaxWindowEntries caps the number of retained access timestamps per key.
	MaxWindowEntries int `json:"max_window_entries" yaml:"max_window_entries"`

	// WindowDuration drops access timestamps older than this.
	WindowDuration time.Duration `json:"window_duration" yaml:"window_duration"`
}

// DefaultTrackerConfig returns sensible defaults for access tracking.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxWindowEntries: 256,
		WindowDuration:   30 * 24 * time.Hour,
	}
}

// AccessInfo is the per-key mutable access record. TotalAccesses is
// monotonically non-decreasing for the lifetime of a key; AccessTimes is
// a bounded window of recent access timestamps.
type AccessInfo struct {
	TotalAccesses    int               `json:"total_accesses"`
	LastAccess       *time.Time        `json:"last_access,omitempty"`
	AccessTimes      []time.Time       `json:"access_times,omitempty"`
	MigrationHistory []MigrationRecord `json:"migration_history,omitempty"`
}

func (a *AccessInfo) clone() AccessInfo {
	out := AccessInfo{TotalAccesses: a.TotalAccesses}
	if a.LastAccess != nil {
		last := *a.LastAccess
		out.LastAccess = &last
	}
	out.AccessTimes = append([]time.Time(nil), a.AccessTimes...)
	out.MigrationHistory = append([]MigrationRecord(nil), a.MigrationHistory...)
	return out
}

// AccessPatternTracker maintains per-key access counts, timestamps and
// migration history. Writes are serialized; readers receive copies of the
// last-committed state.
type AccessPatternTracker struct {
	mu     sync.RWMutex
	config TrackerConfig
	infos  map[string]*AccessInfo
	now    func() time.Time
}

// NewAccessPatternTracker creates an empty tracker.
func NewAccessPatternTracker(config TrackerConfig) *AccessPatternTracker {
	if config.MaxWindowEntries <= 0 {
		config.MaxWindowEntries = 256
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = 30 * 24 * time.Hour
	}
	return &AccessPatternTracker{
		config: config,
		infos:  make(map[string]*AccessInfo),
		now:    time.Now,
	}
}

func (t *AccessPatternTracker) getOrCreate(key string) *AccessInfo {
	info, ok := t.infos[key]
	if !ok {
		info = &AccessInfo{}
		t.infos[key] = info
	}
	return info
}

// RecordAccess records one access to the given key: increments the total,
// appends the timestamp and trims the window.
func (t *AccessPatternTracker) RecordAccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := t.getOrCreate(key)
	now := t.now()
	info.TotalAccesses++
	info.LastAccess = &now
	info.AccessTimes = append(info.AccessTimes, now)
	t.trim(info, now)
}

func (t *AccessPatternTracker) trim(info *AccessInfo, now time.Time) {
	cutoff := now.Add(-t.config.WindowDuration)
	idx := 0
	for _, ts := range info.AccessTimes {
		if ts.After(cutoff) {
			info.AccessTimes[idx] = ts
			idx++
		}
	}
	info.AccessTimes = info.AccessTimes[:idx]
	if excess := len(info.AccessTimes) - t.config.MaxWindowEntries; excess > 0 {
		info.AccessTimes = append(info.AccessTimes[:0], info.AccessTimes[excess:]...)
	}
}

// RecordMigration appends a migration record to the key's history.
func (t *AccessPatternTracker) RecordMigration(key string, from, to StorageTier) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := t.getOrCreate(key)
	info.MigrationHistory = append(info.MigrationHistory, MigrationRecord{
		FromTier:  from,
		ToTier:    to,
		Timestamp: t.now(),
	})
}

// Get returns a copy of the access info for the key.
func (t *AccessPatternTracker) Get(key string) (AccessInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.infos[key]
	if !ok {
		return AccessInfo{}, false
	}
	return info.clone(), true
}

// Keys returns all tracked keys in sorted order.
func (t *AccessPatternTracker) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.infos))
	for k := range t.infos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of tracked keys.
func (t *AccessPatternTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.infos)
}

// MigrationHistory returns a copy of every key's migration records.
func (t *AccessPatternTracker) MigrationHistory() map[string][]MigrationRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string][]MigrationRecord)
	for key, info := range t.infos {
		if len(info.MigrationHistory) > 0 {
			out[key] = append([]MigrationRecord(nil), info.MigrationHistory...)
		}
	}
	return out
}

// Snapshot serializes the tracker state. Reloading a snapshot reproduces
// identical scoring decisions.
func (t *AccessPatternTracker) Snapshot() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return json.Marshal(t.infos)
}

// LoadSnapshot replaces the tracker state with a previously serialized
// snapshot.
func (t *AccessPatternTracker) LoadSnapshot(data []byte) error {
	infos := make(map[string]*AccessInfo)
	if err := json.Unmarshal(data, &infos); err != nil {
		return fmt.Errorf("decode access pattern snapshot: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.infos = infos
	return nil
}
