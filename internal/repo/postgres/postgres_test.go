package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/repo"
	"github.com/hamed0406/pingwatch/internal/repo/repotest"
)

// freshSchema creates an empty schema for one test and returns a DSN that
// points the connection's search_path at it.
func freshSchema(t *testing.T, dsn string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()

	schema := fmt.Sprintf("pingwatch_test_%d", time.Now().UTC().UnixNano())
	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return
		}
		defer p.Close()
		_, _ = p.Exec(ctx, `DROP SCHEMA `+schema+` CASCADE`)
	})

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + schema
}

func TestPostgresStore_Suite(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	repotest.Run(t, func(t *testing.T) repo.Store {
		ctx := context.Background()
		store, err := New(ctx, freshSchema(t, dsn), zap.NewNop())
		if err != nil {
			t.Fatalf("New store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		return store
	}, nil)
}

func TestNullTime(t *testing.T) {
	if nullTime(time.Time{}) != nil {
		t.Fatal("zero time should map to NULL")
	}
	now := time.Now()
	if p := nullTime(now); p == nil || !p.Equal(now) {
		t.Fatal("non-zero time lost")
	}
	if !stamp(nil).IsZero() {
		t.Fatal("NULL should map to zero time")
	}
}
