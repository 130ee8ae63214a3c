package snapshotstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists snapshot blobs in a single Postgres table, sharing the
// pool the rest of the process uses (ADR-style pattern carried from the
// teacher's DatabaseClients: one pgxpool, no per-component pool).
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps an already-connected pool. Call EnsureSchema once at
// startup before using the store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema creates the snapshots table if absent.
func (p *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			name       TEXT PRIMARY KEY,
			data       BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (p *PgStore) Save(ctx context.Context, name string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO snapshots (name, data, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, created_at = EXCLUDED.created_at
	`, name, data)
	return err
}

func (p *PgStore) Load(ctx context.Context, name string) (Record, error) {
	var r Record
	err := p.pool.QueryRow(ctx, `SELECT name, data, created_at FROM snapshots WHERE name = $1`, name).
		Scan(&r.Name, &r.Data, &r.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Record{}, ErrNotFound(name)
		}
		return Record{}, err
	}
	return r, nil
}

func (p *PgStore) List(ctx context.Context) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT name, data, created_at FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.Data, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PgStore) Prune(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := p.pool.Query(ctx, `DELETE FROM snapshots WHERE created_at < $1 RETURNING name`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		removed = append(removed, name)
	}
	return removed, rows.Err()
}
