package strata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrObjectNotFound is returned when a key has no object in the requested
// tier's storage area.
var ErrObjectNotFound = errors.New("object not found")

// Substrate is the persistence layer the tiering engine operates on:
// a (tier, key)-addressed object store in which each entry can be
// atomically relocated between tiers.
type Substrate interface {
	// Read reads the object stored under key in the tier's area.
	Read(ctx context.Context, tier StorageTier, key string) ([]byte, error)

	// Write stores the object under key in the tier's area.
	Write(ctx context.Context, tier StorageTier, key string, data []byte) error

	// Delete removes the object from the tier's area.
	Delete(ctx context.Context, tier StorageTier, key string) error

	// Move atomically relocates the object from one tier's area to
	// another. After a successful move the object exists in exactly one
	// tier.
	Move(ctx context.Context, key string, from, to StorageTier) error

	// List returns all keys stored in the tier's area.
	List(ctx context.Context, tier StorageTier) ([]string, error)

	// Exists checks whether the key has an object in the tier's area.
	Exists(ctx context.Context, tier StorageTier, key string) (bool, error)

	// Close releases any resources.
	Close() error
}

// Ensure interfaces are implemented
var (
	_ Substrate = (*FileSubstrate)(nil)
	_ Substrate = (*MemorySubstrate)(nil)
)

// FileSubstrate implements Substrate on the local filesystem with one
// subdirectory per tier. Moves are os.Rename, atomic on a single
// filesystem.
type FileSubstrate struct {
	root string
}

// NewFileSubstrate creates a file substrate rooted at root. All four tier
// directories are created eagerly so the layout invariant holds from
// construction.
func NewFileSubstrate(root string) (*FileSubstrate, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve substrate root: %w", err)
	}
	abs = filepath.Clean(abs)
	for _, tier := range AllTiers {
		if err := os.MkdirAll(filepath.Join(abs, tier.String()), 0o755); err != nil {
			return nil, fmt.Errorf("create %s tier directory: %w", tier, err)
		}
	}
	return &FileSubstrate{root: abs}, nil
}

// safePath validates that the key resolves inside the tier directory,
// preventing path traversal through crafted keys.
func (f *FileSubstrate) safePath(tier StorageTier, key string) (string, error) {
	base := filepath.Join(f.root, tier.String())
	resolved := filepath.Clean(filepath.Join(base, filepath.Clean(key)))
	if resolved == base || !strings.HasPrefix(resolved, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid key %q: escapes tier directory", key)
	}
	return resolved, nil
}

func (f *FileSubstrate) Read(ctx context.Context, tier StorageTier, key string) ([]byte, error) {
	path, err := f.safePath(tier, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/%s: %w", tier, key, ErrObjectNotFound)
	}
	return data, err
}

func (f *FileSubstrate) Write(ctx context.Context, tier StorageTier, key string, data []byte) error {
	path, err := f.safePath(tier, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (f *FileSubstrate) Delete(ctx context.Context, tier StorageTier, key string) error {
	path, err := f.safePath(tier, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s/%s: %w", tier, key, ErrObjectNotFound)
		}
		return err
	}
	return nil
}

func (f *FileSubstrate) Move(ctx context.Context, key string, from, to StorageTier) error {
	src, err := f.safePath(from, key)
	if err != nil {
		return err
	}
	dst, err := f.safePath(to, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s/%s: %w", from, key, ErrObjectNotFound)
		}
		return fmt.Errorf("move %s from %s to %s: %w", key, from, to, err)
	}
	return nil
}

func (f *FileSubstrate) List(ctx context.Context, tier StorageTier) ([]string, error) {
	base := filepath.Join(f.root, tier.String())
	var keys []string
	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(base, path)
			keys = append(keys, filepath.ToSlash(rel))
		}
		return nil
	})
	return keys, err
}

func (f *FileSubstrate) Exists(ctx context.Context, tier StorageTier, key string) (bool, error) {
	path, err := f.safePath(tier, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (f *FileSubstrate) Close() error {
	return nil
}

// MemorySubstrate implements Substrate in memory. Useful for tests.
type MemorySubstrate struct {
	mu      sync.RWMutex
	objects map[StorageTier]map[string][]byte
}

// NewMemorySubstrate creates an empty in-memory substrate with all four
// tier areas present.
func NewMemorySubstrate() *MemorySubstrate {
	objects := make(map[StorageTier]map[string][]byte, len(AllTiers))
	for _, tier := range AllTiers {
		objects[tier] = make(map[string][]byte)
	}
	return &MemorySubstrate{objects: objects}
}

func (m *MemorySubstrate) Read(ctx context.Context, tier StorageTier, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[tier][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", tier, key, ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemorySubstrate) Write(ctx context.Context, tier StorageTier, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[tier][key] = append([]byte(nil), data...)
	return nil
}

func (m *MemorySubstrate) Delete(ctx context.Context, tier StorageTier, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[tier][key]; !ok {
		return fmt.Errorf("%s/%s: %w", tier, key, ErrObjectNotFound)
	}
	delete(m.objects[tier], key)
	return nil
}

func (m *MemorySubstrate) Move(ctx context.Context, key string, from, to StorageTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[from][key]
	if !ok {
		return fmt.Errorf("%s/%s: %w", from, key, ErrObjectNotFound)
	}
	m.objects[to][key] = data
	delete(m.objects[from], key)
	return nil
}

func (m *MemorySubstrate) List(ctx context.Context, tier StorageTier) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects[tier]))
	for k := range m.objects[tier] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemorySubstrate) Exists(ctx context.Context, tier StorageTier, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[tier][key]
	return ok, nil
}

func (m *MemorySubstrate) Close() error {
	return nil
}
