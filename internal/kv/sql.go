package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

type dialect struct {
	createTable string
	upsert      string
	increment   string
}

var dialects = map[string]dialect{
	"mysql": {
		createTable: `CREATE TABLE IF NOT EXISTS kv_entries (
			k VARCHAR(255) NOT NULL PRIMARY KEY,
			v TEXT NOT NULL,
			expires_at BIGINT NOT NULL DEFAULT 0
		)`,
		upsert: `INSERT INTO kv_entries (k, v, expires_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE v = VALUES(v), expires_at = VALUES(expires_at)`,
		increment: `INSERT INTO kv_entries (k, v, expires_at) VALUES (?, '1', ?)
		ON DUPLICATE KEY UPDATE v = CAST(v AS UNSIGNED) + 1`,
	},
	"sqlite3": {
		createTable: `CREATE TABLE IF NOT EXISTS kv_entries (
			k TEXT NOT NULL PRIMARY KEY,
			v TEXT NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`,
		upsert: `INSERT INTO kv_entries (k, v, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at`,
		increment: `INSERT INTO kv_entries (k, v, expires_at) VALUES (?, '1', ?)
		ON CONFLICT(k) DO UPDATE SET v = CAST(v AS INTEGER) + 1`,
	},
}

type sqlEntry struct {
	Value     string `db:"v"`
	ExpiresAt int64  `db:"expires_at"`
}

// SQLStore keeps entries in a kv_entries table on MySQL or SQLite.
// expires_at is a unix timestamp in seconds, 0 for entries without expiry.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	now     func() time.Time
}

func NewSQLStore(db *sqlx.DB) (*SQLStore, error) {
	d, ok := dialects[db.DriverName()]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver: %s", db.DriverName())
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		now:     time.Now,
	}, nil
}

// Migrate creates the kv_entries table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTable); err != nil {
		return fmt.Errorf("db.ExecContext(create kv_entries) > %w", err)
	}
	return nil
}

func (s *SQLStore) expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).Unix()
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry sqlEntry
	err := s.db.GetContext(ctx, &entry, "SELECT v, expires_at FROM kv_entries WHERE k = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("db.GetContext(kv_entry) > %w", err)
	}
	if entry.ExpiresAt != 0 && entry.ExpiresAt <= s.now().Unix() {
		return "", false, nil
	}
	return entry.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, key, value, s.expiresAt(ttl)); err != nil {
		return fmt.Errorf("db.ExecContext(upsert kv_entry) > %w", err)
	}
	return nil
}

func (s *SQLStore) Incr(ctx context.Context, key string, ttl time.Duration) (count int64, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("db.BeginTxx > %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now().Unix()
	if _, err = tx.ExecContext(ctx, "DELETE FROM kv_entries WHERE k = ? AND expires_at <> 0 AND expires_at <= ?", key, now); err != nil {
		return 0, fmt.Errorf("tx.ExecContext(delete expired kv_entry) > %w", err)
	}
	if _, err = tx.ExecContext(ctx, s.dialect.increment, key, s.expiresAt(ttl)); err != nil {
		return 0, fmt.Errorf("tx.ExecContext(increment kv_entry) > %w", err)
	}
	var value string
	if err = tx.GetContext(ctx, &value, "SELECT v FROM kv_entries WHERE k = ?", key); err != nil {
		return 0, fmt.Errorf("tx.GetContext(kv_entry) > %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("tx.Commit > %w", err)
	}

	count, err = strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("strconv.ParseInt(%s) > %w", value, err)
	}
	return count, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
