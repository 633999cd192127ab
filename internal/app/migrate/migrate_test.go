package migrate

import (
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, t.TempDir(), nil); err == nil {
		t.Fatalf("expected nil pool to be rejected")
	}

	cfg, err := pgxpool.ParseConfig("postgres://catalyst@localhost:5432/catalyst")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(t.Context(), cfg)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	if _, err := New(pool, filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Fatalf("expected missing migrations dir to be rejected")
	}
}
