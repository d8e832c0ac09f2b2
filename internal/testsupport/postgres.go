//go:build integration

// Package testsupport starts the containers integration tests run against.
package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// StartPostgres launches a Postgres container, applies every up migration and
// returns a pool that is closed with the container on test cleanup.
func StartPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("study"),
		postgrescontainer.WithUsername("study"),
		postgrescontainer.WithPassword("study"),
	)
	testcontainers.CleanupContainer(t, pg)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runMigrations(ctx, t, pool)
	return pool
}

func runMigrations(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	migrationsDir := filepath.Join(filepath.Dir(file), "../../db/postgres/migrations")

	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")
	sort.Strings(files)

	for _, f := range files {
		contents, err := os.ReadFile(f)
		require.NoErrorf(t, err, "read migration %s", f)
		_, err = pool.Exec(ctx, string(contents))
		require.NoErrorf(t, err, "execute migration %s", f)
	}
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
