package testutil

import (
	"context"
	"testing"
	"time"

	"betting_ledger/internal/config"
	"betting_ledger/internal/database"
	"betting_ledger/internal/schema"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
)

// TestDatabase is a migrated PostgreSQL instance running in a container
type TestDatabase struct {
	Container *postgres.PostgresContainer
	DB        *gorm.DB
	URL       string
}

// SetupTestDatabase starts a PostgreSQL container and migrates the schema.
// The test is skipped when no container runtime is available.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	labels := map[string]string{
		"test":      "betting-ledger",
		"test-name": t.Name(),
		"timestamp": time.Now().Format("20060102-150405"),
		"cleanup":   "auto",
	}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ledger_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(labels),
	)
	require.NoError(t, err)

	testDB := &TestDatabase{Container: container}
	t.Cleanup(func() {
		testDB.cleanup(t)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(connStr, "test")
	require.NoError(t, err)
	require.NoError(t, schema.Migrate(db))

	testDB.DB = db
	testDB.URL = connStr
	return testDB
}

// Runner returns a runner with the default retry policy
func (td *TestDatabase) Runner() *database.Runner {
	return database.NewRunner(td.DB, 3, 10*time.Millisecond, 2*time.Second)
}

func (td *TestDatabase) cleanup(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Logf("Panic during container cleanup (recovered): %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if td.DB != nil {
		database.Close(td.DB)
	}
	if td.Container != nil {
		if err := td.Container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate test container: %v", err)
		}
	}
}

// TestConfig is the default configuration with deterministic rates
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	return TestConfigWith(t, nil)
}

// TestConfigWith is TestConfig with extra environment values layered on top
func TestConfigWith(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"HOUSE_CUT_RATE":       "0.1",
		"DRAW_REFUND_CUT_RATE": "0.02",
		"MAX_PLAYERS_PER_GAME": "duel:2",
		"ENVIRONMENT":          "test",
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.FromEnv(func(key string) string { return env[key] })
	require.NoError(t, err)
	return cfg
}
