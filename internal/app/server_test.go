package app

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/database"
	"github.com/akshaykankal/facto/internal/infrastructure/lock"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/security"
	"github.com/akshaykankal/facto/internal/infrastructure/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_Initialization(t *testing.T) {
	container, _ := newTestContainer(t, testConfig("development", false))

	assert.NotNil(t, container.Repo)
	assert.NotNil(t, container.JWTService)
	assert.NotNil(t, container.HealthHandler)
	assert.NotNil(t, container.AttendanceHandler)
	assert.Nil(t, container.Planner)

	// 1. Without Redis the lock and limiter stay in-process.
	assert.IsType(t, &lock.MemoryLocker{}, container.Locker)
	assert.IsType(t, &security.InMemoryRateLimiter{}, container.GetRateLimiter())
	assert.Same(t, container.GetRateLimiter(), container.GetRateLimiter())
}

func TestContainer_RejectsEmptyVaultPassphrase(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	cfg := testConfig("development", false)
	cfg.Vault = config.VaultConfig{}
	logger, _ := observability.NewLogger("error", "console")

	_, err = NewContainer(cfg, database.New(sqlDB, nil, 0, nil, logger), logger)
	assert.ErrorIs(t, err, vault.ErrEmptyPassphrase)
}

func TestServer_BackgroundWorkers(t *testing.T) {
	cfg := testConfig("development", false)
	cfg.Automation.PlannerEnabled = true
	cfg.Automation.SweepInterval = time.Hour
	container, mock := newTestContainer(t, cfg)
	require.NotNil(t, container.Planner)

	// 1. Planner start loads every schedulable user once.
	mock.ExpectQuery("SELECT (.+) FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	server := NewServer(container)
	require.NoError(t, server.startBackgroundWorkers())
	assert.True(t, container.Planner.Running())

	// 2. Stopping halts the planner and every loop.
	done := make(chan struct{})
	go func() {
		server.stopWorkers()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background workers did not stop")
	}
	assert.False(t, container.Planner.Running())
	assert.NoError(t, mock.ExpectationsWereMet())
}
