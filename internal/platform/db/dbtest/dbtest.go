// Package dbtest opens throwaway PostgreSQL schemas for repository tests.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/printhouse/textile-erp/internal/platform/db"
)

// EnvDSN names the variable holding the database used by repository tests.
const EnvDSN = "TEXTILE_TEST_PG_DSN"

// Open returns a pool bound to a fresh schema with every up migration applied.
// The schema is dropped when the test ends. Without EnvDSN the test is skipped.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(EnvDSN))
	if dsn == "" {
		t.Skipf("set %s to run repository tests against postgres", EnvDSN)
	}
	ctx := context.Background()

	admin, err := db.New(ctx, dsn, 2)
	require.NoError(t, err)

	schema := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, `CREATE SCHEMA `+schema)
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), `DROP SCHEMA `+schema+` CASCADE`)
		admin.Close()
	})

	for _, file := range upMigrations(t) {
		raw, err := os.ReadFile(file)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(raw))
		require.NoError(t, err, "apply %s", filepath.Base(file))
	}
	return pool
}

func upMigrations(t testing.TB) []string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	require.True(t, ok)
	dir := filepath.Join(filepath.Dir(self), "..", "..", "..", "..", "migrations")
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no migrations in %s", dir)
	sort.Strings(files)
	return files
}
