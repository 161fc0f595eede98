package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createStateTableSQL = `CREATE TABLE IF NOT EXISTS mirror_state (
        key        text PRIMARY KEY,
        value      jsonb NOT NULL,
        updated_at timestamptz NOT NULL DEFAULT now()
    );`

	getStateSQL = `SELECT key, value FROM mirror_state WHERE key = ANY($1);`

	setStateSQL = `INSERT INTO mirror_state (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value = EXCLUDED.value, updated_at = now();`

	clearStateSQL = `DELETE FROM mirror_state;`
)

// Store persists mirrored state in a Postgres jsonb table, one row per
// top-level key.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the state table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createStateTableSQL); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

// Get fetches the requested keys. Absent keys are simply missing from the
// result, not an error.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getStateSQL, keys)
	if queryErr != nil {
		return nil, fmt.Errorf("get state: %w", queryErr)
	}
	defer rows.Close()

	result := make(map[string]json.RawMessage, len(keys))
	for rows.Next() {
		var key string
		var value []byte
		if scanErr := rows.Scan(&key, &value); scanErr != nil {
			return nil, fmt.Errorf("scan state row: %w", scanErr)
		}
		result[key] = json.RawMessage(value)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("read state rows: %w", rows.Err())
	}
	return result, nil
}

// Set upserts the given keys in a single batch.
func (s *Store) Set(ctx context.Context, values map[string]json.RawMessage) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for key, value := range values {
		batch.Queue(setStateSQL, key, []byte(value))
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range values {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("set state: %w", execErr)
		}
	}
	return nil
}

// Clear removes all mirrored state.
func (s *Store) Clear(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, clearStateSQL); execErr != nil {
		return fmt.Errorf("clear state: %w", execErr)
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

var _ KV = (*Store)(nil)
