package strata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	_ "modernc.org/sqlite"
)

// SQLiteSubstrateConfig configures the SQLite substrate.
type SQLiteSubstrateConfig struct {
	Path     string // database file, or ":memory:"
	Compress bool   // snappy-compress object blobs
}

// SQLiteSubstrate implements Substrate on a single embedded SQLite
// database. Objects live in one table keyed by (tier, key), so Move is a
// single UPDATE and therefore atomic without filesystem cooperation.
type SQLiteSubstrate struct {
	db       *sql.DB
	compress bool
}

var _ Substrate = (*SQLiteSubstrate)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS objects (
	tier       TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       BLOB NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (tier, key)
);
`

// NewSQLiteSubstrate opens (or creates) the database at cfg.Path.
func NewSQLiteSubstrate(cfg SQLiteSubstrateConfig) (*SQLiteSubstrate, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The modernc driver serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create objects table: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	return &SQLiteSubstrate{db: db, compress: cfg.Compress}, nil
}

func (s *SQLiteSubstrate) Read(ctx context.Context, tier StorageTier, key string) ([]byte, error) {
	var data []byte
	var compressed bool
	err := s.db.QueryRowContext(ctx,
		`SELECT data, compressed FROM objects WHERE tier = ? AND key = ?`,
		tier.String(), key).Scan(&data, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", tier, key, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read %s/%s: %w", tier, key, err)
	}
	if compressed {
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("sqlite read %s/%s: decompress: %w", tier, key, err)
		}
		return decoded, nil
	}
	return data, nil
}

func (s *SQLiteSubstrate) Write(ctx context.Context, tier StorageTier, key string, data []byte) error {
	blob := data
	compressed := false
	if s.compress {
		blob = snappy.Encode(nil, data)
		compressed = true
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (tier, key, data, compressed, updated_at)
		 VALUES (?, ?, ?, ?, unixepoch())
		 ON CONFLICT (tier, key) DO UPDATE SET
		 	data = excluded.data,
		 	compressed = excluded.compressed,
		 	updated_at = excluded.updated_at`,
		tier.String(), key, blob, compressed)
	if err != nil {
		return fmt.Errorf("sqlite write %s/%s: %w", tier, key, err)
	}
	return nil
}

func (s *SQLiteSubstrate) Delete(ctx context.Context, tier StorageTier, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM objects WHERE tier = ? AND key = ?`, tier.String(), key)
	if err != nil {
		return fmt.Errorf("sqlite delete %s/%s: %w", tier, key, err)
	}
	return nil
}

func (s *SQLiteSubstrate) Move(ctx context.Context, key string, from, to StorageTier) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite move %s: begin: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	// Clear any stale copy at the destination first so the UPDATE cannot
	// hit the primary key.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM objects WHERE tier = ? AND key = ?`, to.String(), key); err != nil {
		return fmt.Errorf("sqlite move %s: clear destination: %w", key, err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE objects SET tier = ?, updated_at = unixepoch() WHERE tier = ? AND key = ?`,
		to.String(), from.String(), key)
	if err != nil {
		return fmt.Errorf("sqlite move %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite move %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", from, key, ErrObjectNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite move %s: commit: %w", key, err)
	}
	return nil
}

func (s *SQLiteSubstrate) List(ctx context.Context, tier StorageTier) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM objects WHERE tier = ? ORDER BY key`, tier.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite list %s tier: %w", tier, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite list %s tier: %w", tier, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list %s tier: %w", tier, err)
	}
	return keys, nil
}

func (s *SQLiteSubstrate) Exists(ctx context.Context, tier StorageTier, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM objects WHERE tier = ? AND key = ?`, tier.String(), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite exists %s/%s: %w", tier, key, err)
	}
	return true, nil
}

func (s *SQLiteSubstrate) Close() error {
	return s.db.Close()
}
