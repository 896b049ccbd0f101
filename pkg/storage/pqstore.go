package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// PQStore is an alternate Store backend for operators who already run
// Postgres for other services and would rather not add a second storage
// engine. Schema: a single table keyed by the full "{namespace}:{id}"
// string, mirroring KVStore's key shape so the two backends are
// interchangeable without touching call sites.
type PQStore struct {
	db     *sql.DB
	logger *log.Logger
}

// PQStoreOption is a functional option for configuring PQStore.
type PQStoreOption func(*PQStore)

func WithLogger(logger *log.Logger) PQStoreOption {
	return func(s *PQStore) { s.logger = logger }
}

// NewPQStore opens a connection pool against databaseURL and ensures the
// backing table exists.
func NewPQStore(ctx context.Context, databaseURL string, maxOpenConns, maxIdleConns int, opts ...PQStoreOption) (*PQStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url cannot be empty")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres store: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres store: %w", err)
	}

	store := &PQStore{db: db, logger: log.New(log.Writer(), "[Store] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(store)
	}

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure solver_kv table: %w", err)
	}

	store.logger.Printf("connected to postgres store (max_open=%d, max_idle=%d)", maxOpenConns, maxIdleConns)
	return store, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS solver_kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ
)`

func (s *PQStore) Close() error {
	return s.db.Close()
}

func (s *PQStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullTime
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM solver_kv WHERE key = $1`, key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("pqstore get %s: %w", key, err)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, types.ErrNotFound
	}
	return value, nil
}

func (s *PQStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solver_kv (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("pqstore put %s: %w", key, err)
	}
	return nil
}

func (s *PQStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM solver_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("pqstore delete %s: %w", key, err)
	}
	return nil
}

func (s *PQStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == types.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PQStore) CleanupExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM solver_kv WHERE expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("pqstore cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pqstore cleanup rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PQStore) Iterate(ctx context.Context, namespace types.StorageKey, fn func(id string, value []byte) error) error {
	prefix := string(namespace) + ":"
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM solver_kv
		WHERE key LIKE $1 AND (expires_at IS NULL OR expires_at > now())`, prefix+"%")
	if err != nil {
		return fmt.Errorf("pqstore iterate %s: %w", namespace, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("pqstore scan %s: %w", namespace, err)
		}
		id := strings.TrimPrefix(key, prefix)
		if err := fn(id, value); err != nil {
			return err
		}
	}
	return rows.Err()
}
