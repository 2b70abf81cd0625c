package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/database"
)

// newTestPool starts a real Postgres container and applies the embedded
// migrations through NewPool, the same path the production binary takes.
// Exercising RLS policies and SKIP LOCKED semantics against a real server
// (rather than a mock) is why this component is tested with
// testcontainers-go instead of an in-memory fake.
func newTestPool(t *testing.T) (*pgxpool.Pool, config.DatabaseConfig) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("memoryos_test"),
		tcpostgres.WithUsername("memoryos"),
		tcpostgres.WithPassword("memoryos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "memoryos",
		Password:        "memoryos",
		Database:        "memoryos_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}

	pool, err := database.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool, cfg
}

func TestNewPool_ConnectivityAndHealth(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, pool.Ping(ctx))

	health, err := database.Health(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxConns, int32(0))
}
