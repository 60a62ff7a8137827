//go:build integration

// Package dbtest starts a throwaway Postgres for integration tests and
// applies the embedded migrations to it.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/migration"
)

// Postgres returns migrated connections and a transactor. The container is
// terminated when the test ends.
func Postgres(t *testing.T) (*database.Connections, database.Transactor) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "handoff",
			"POSTGRES_PASSWORD": "handoff",
			"POSTGRES_DB":       "handoff",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://handoff:handoff@%s:%s/handoff?sslmode=disable", host, port.Port())
	cfg := config.Config{Database: config.Database{
		Driver:       "postgres",
		WriterDSN:    dsn,
		ReaderDSN:    dsn,
		MaxOpenConns: 20,
		MaxIdleConns: 5,
		TxMaxRetries: 3,
	}}

	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })
	require.NoError(t, conns.Ping(ctx))

	mig, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mig.Up(ctx))

	return conns, database.NewTransactor(conns, cfg, zap.NewNop())
}
