// Package app wires a workspace together: database, migrations, config and
// the pipeline engine. The CLI and anything embedding planline go through
// Open so every entry point sees the same setup.
package app

import (
	"context"
	"database/sql"
	"path/filepath"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/store"
)

type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine *engine.Engine
}

// Open prepares the workspace: opens the database, applies migrations, loads
// planline.yml and rehydrates persisted geometry into the engine store.
func Open(ctx context.Context, workspace string) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = filepath.Join(workspace, "exports")
	}
	e := engine.New(conn, store.New(), cfg)
	if err := e.Rehydrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &App{DB: conn, Config: cfg, Engine: e}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
