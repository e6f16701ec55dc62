package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/internal/store/postgres"
	"github.com/MrWong99/macca/internal/store/storetest"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if MACCA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MACCA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MACCA_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore drops every Macca table and returns a freshly migrated store.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS feedback_issues, utterances, vocabulary_items, sessions, profiles CASCADE`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	s, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// The suite shares one database, so it runs serially.
func TestConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestMigrateIsIdempotent(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()
	newTestStore(t)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	for range 2 {
		if err := postgres.Migrate(ctx, pool); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
}
