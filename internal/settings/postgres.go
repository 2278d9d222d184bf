package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the key-value table the settings are stored in.
const Schema = `
CREATE TABLE IF NOT EXISTS studio_settings (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the subset of *pgxpool.Pool and *pgx.Conn the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps the settings in the studio_settings table.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store over db. Call [PostgresStore.Migrate]
// before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("settings: migrate: %w", err)
	}
	return nil
}

// Load reads the settings, overlaying the stored values on [Default].
func (p *PostgresStore) Load(ctx context.Context) (Settings, error) {
	var raw []byte
	err := p.db.QueryRow(ctx, `SELECT value FROM studio_settings WHERE key = $1`, StorageKey).Scan(&raw)
	s := Default()
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return s, nil
	case err != nil:
		return Settings{}, fmt.Errorf("settings: load: %w", err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: decode: %w", err)
	}
	s.Normalize()
	return s, nil
}

// Save upserts the settings row.
func (p *PostgresStore) Save(ctx context.Context, s Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	const query = `
		INSERT INTO studio_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := p.db.Exec(ctx, query, StorageKey, raw); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}
