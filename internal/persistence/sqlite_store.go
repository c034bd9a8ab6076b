package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore holds dubbed audio blobs, raw subtitle text and saved user state.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) GetAudio(ctx context.Context, assetKey string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM audio_cache WHERE asset_key = ?`,
		assetKey,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE audio_cache SET accessed_at = ? WHERE asset_key = ?`,
		s.now().UTC(), assetKey,
	); err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *SQLiteStore) PutAudio(ctx context.Context, assetKey string, data []byte) error {
	if assetKey == "" {
		return fmt.Errorf("asset key is required")
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audio_cache (asset_key, data, size_bytes, created_at, accessed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(asset_key) DO UPDATE SET
			data=excluded.data,
			size_bytes=excluded.size_bytes,
			accessed_at=excluded.accessed_at`,
		assetKey,
		data,
		len(data),
		now,
		now,
	)
	return err
}

// PruneAudio removes blobs that were not read since before.
func (s *SQLiteStore) PruneAudio(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache WHERE accessed_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AudioStats reports the number of cached blobs and their total size.
func (s *SQLiteStore) AudioStats(ctx context.Context) (count int64, totalBytes int64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM audio_cache`,
	).Scan(&count, &totalBytes)
	return
}

func (s *SQLiteStore) GetSubtitleText(ctx context.Context, key string) (string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT raw_text FROM subtitle_cache WHERE cache_key = ?`,
		key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return raw, true, nil
}

func (s *SQLiteStore) PutSubtitleText(ctx context.Context, key string, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subtitle_cache (cache_key, raw_text, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			raw_text=excluded.raw_text,
			updated_at=excluded.updated_at`,
		key,
		text,
		s.now().UTC(),
	)
	return err
}

// GetState returns the raw JSON saved under key.
func (s *SQLiteStore) GetState(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value_json FROM kv_state WHERE state_key = ?`,
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (s *SQLiteStore) PutState(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_state (state_key, value_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(state_key) DO UPDATE SET
			value_json=excluded.value_json,
			updated_at=excluded.updated_at`,
		key,
		string(value),
		s.now().UTC(),
	)
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_state WHERE state_key = ?`, key)
	return err
}
