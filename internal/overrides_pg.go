package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lychee-technology/viewplane"
)

// overridePool is the subset of pgxpool.Pool the override storage needs.
// Narrowed so tests can substitute a pgxmock pool.
type overridePool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresOverrideStorage reads layout override records from a Postgres
// table keyed by record path. Shared-hosting deployments keep screen
// options in the database instead of per-node files.
type PostgresOverrideStorage struct {
	pool      overridePool
	tableName string
}

// NewPostgresOverrideStorage creates a Postgres-backed override storage.
func NewPostgresOverrideStorage(pool overridePool, tableName string) *PostgresOverrideStorage {
	return &PostgresOverrideStorage{pool: pool, tableName: tableName}
}

// ReadRecord reads the payload for one record key. Missing rows return
// (nil, nil).
func (s *PostgresOverrideStorage) ReadRecord(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT payload FROM %s WHERE record_key = $1", s.tableName)
	var raw []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, viewplane.NewStorageError("failed to query override record", err).WithDetail("key", key)
	}
	return raw, nil
}

// WriteRecord upserts the payload for one record key.
func (s *PostgresOverrideStorage) WriteRecord(ctx context.Context, key string, raw []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (record_key, payload) VALUES ($1, $2)
		ON CONFLICT (record_key) DO UPDATE SET payload = EXCLUDED.payload`, s.tableName)
	if _, err := s.pool.Exec(ctx, query, key, raw); err != nil {
		return viewplane.NewStorageError("failed to upsert override record", err).WithDetail("key", key)
	}
	return nil
}
