// Package migrate applies the goose migrations under db/migrations to the record store.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migration describes one migration file and whether the database has it.
type Migration struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Runner drives a goose provider over a database/sql handle borrowed from the pool.
type Runner struct {
	pool     *pgxpool.Pool
	db       *sql.DB
	provider *goose.Provider
	log      *slog.Logger
}

// New opens a provider for the SQL files in dir. The runner owns pool from here on.
func New(pool *pgxpool.Pool, dir string, log *slog.Logger) (*Runner, error) {
	if pool == nil {
		return nil, errors.New("migrate: nil pool")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: migrations dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrate: %s is not a directory", dir)
	}
	if log == nil {
		log = slog.Default()
	}
	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: load migrations: %w", err)
	}
	return &Runner{pool: pool, db: db, provider: provider, log: log.With("component", "migrate")}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	r.report("up", results)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	r.log.Info("schema up to date", "version", version, "applied", len(results))
	return nil
}

// Down rolls back one migration, or every migration above target when target > 0.
func (r *Runner) Down(ctx context.Context, target int64) error {
	if target > 0 {
		results, err := r.provider.DownTo(ctx, target)
		r.report("down", results)
		if err != nil {
			return fmt.Errorf("migrate down to %d: %w", target, err)
		}
		return nil
	}
	result, err := r.provider.Down(ctx)
	if result != nil {
		r.report("down", []*goose.MigrationResult{result})
	}
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status lists known migrations in version order.
func (r *Runner) Status(ctx context.Context) ([]Migration, error) {
	states, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	out := make([]Migration, 0, len(states))
	for _, st := range states {
		m := Migration{Applied: st.State == goose.StateApplied, AppliedAt: st.AppliedAt}
		if st.Source != nil {
			m.Version = st.Source.Version
			m.Path = st.Source.Path
		}
		out = append(out, m)
	}
	return out, nil
}

// Close releases the sql handle and the pool.
func (r *Runner) Close() {
	if err := r.provider.Close(); err != nil {
		r.log.Warn("failed to close migration provider", "error", err)
	}
	r.pool.Close()
}

func (r *Runner) report(direction string, results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		attrs := []any{"direction", direction, "version", res.Source.Version, "path", res.Source.Path, "duration", res.Duration}
		if res.Error != nil {
			r.log.Error("migration failed", append(attrs, "error", res.Error)...)
			continue
		}
		r.log.Info("migration applied", attrs...)
	}
}
