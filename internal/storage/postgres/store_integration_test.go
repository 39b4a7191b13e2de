//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravadigital/eventhub-api/internal/config"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/migrations"
	"github.com/gravadigital/eventhub-api/internal/storage/postgres"
	"github.com/gravadigital/eventhub-api/internal/storage/storagetest"
)

// Integration tests that require a real PostgreSQL database
// Run with: go test -tags=integration ./internal/storage/postgres/

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)

	if testDB := os.Getenv("TEST_DB_NAME"); testDB != "" {
		cfg.DB.Name = testDB
	}
	return cfg
}

func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	s, err := postgres.Open(context.Background(), testConfig(t))
	require.NoError(t, err, "Should be able to connect to test database")
	t.Cleanup(func() { _ = s.Close() })

	err = s.DB().Exec("TRUNCATE participations, events, users CASCADE").Error
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return openStore(t)
	})
}

func TestDatabaseMigrationIsIdempotent(t *testing.T) {
	s := openStore(t)

	applied, err := migrations.RunMigrations(context.Background(), s.DB())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestHealth(t *testing.T) {
	s := openStore(t)

	assert.NoError(t, s.Health(context.Background()))
	assert.Equal(t, 0, postgres.GetDatabaseMetrics(s.DB()).InUseConnections)
}
