package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/cantor/internal/config"
	"github.com/MrWong99/cantor/internal/settings"
)

// openSettingsStore opens the configured settings backend. The returned
// closer is nil when nothing needs closing.
func openSettingsStore(ctx context.Context, cfg config.SettingsConfig) (settings.Store, func() error, error) {
	switch cfg.Backend {
	case config.SettingsPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		store := settings.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() error { pool.Close(); return nil }, nil
	default:
		return settings.NewFileStore(cfg.Path), nil, nil
	}
}
