package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/loandesk/internal/app"
	"github.com/charlesng35/loandesk/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "data", "loandesk.sqlite"),
		},
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "bootstrap-test-secret-with-enough-bytes!!",
				Issuer: "loandesk",
				TTL:    time.Hour,
			},
		},
		Notifications: app.NotificationConfig{
			Enabled:     true,
			Channels:    []string{"log"},
			MaxAttempts: 1,
		},
		Scheduler: app.SchedulerConfig{
			Enabled: true,
			Spec:    "@midnight",
			LockTTL: time.Minute,
		},
		Loans: app.LoanPolicyConfig{CheckItemAvailability: true},
	}
}

func TestBootstrapRuntimeWiresServices(t *testing.T) {
	cfg := testConfig(t)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Notifier)
	require.NotNil(t, stack.Scheduler)
	require.Nil(t, stack.Redis)
	require.FileExists(t, cfg.Database.Path)

	var templates int64
	require.NoError(t, stack.DB.Model(&models.NotificationTemplate{}).Count(&templates).Error)
	require.EqualValues(t, 3, templates)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"component":"sweeps"`)
	require.Contains(t, w.Body.String(), "redis disabled")

	report, err := stack.Scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, report.Skipped)
}

func TestBootstrapRuntimeUsesRedisWhenAvailable(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Cache.Redis = app.RedisCacheConfig{Enabled: true, Address: mr.Addr(), Timeout: time.Second}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })
	require.NotNil(t, stack.Redis)

	_, err = stack.Scheduler.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestBootstrapRuntimeWithoutNotifications(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifications.Enabled = false

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Nil(t, stack.Notifier)
	require.Nil(t, stack.Scheduler)

	for _, route := range stack.Router.Routes() {
		require.NotEqual(t, "/api/notifications/sweeps", route.Path)
	}
}

func TestBootstrapRuntimeRejectsUnknownChannel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifications.Channels = []string{"pigeon"}

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "notification channels")
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver: " PostgreSQL ",
		Postgres: app.DBAuthConfig{
			Host:     " db.internal ",
			Port:     5432,
			Database: "loandesk",
			Username: "desk",
			Password: "secret",
			Options:  map[string]string{"sslmode": "require"},
		},
	}}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "loandesk", dbCfg.Name)
	require.Equal(t, "desk", dbCfg.User)
	require.Equal(t, map[string]string{"sslmode": "require"}, dbCfg.Options)

	cfg.Database.Postgres.Options["sslmode"] = "disable"
	require.Equal(t, "require", dbCfg.Options["sslmode"])

	dbCfg = convertDatabaseConfig(&app.Config{Database: app.DatabaseConfig{Path: "./data/x.sqlite"}})
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./data/x.sqlite", dbCfg.Path)
	require.Empty(t, dbCfg.Host)

	dbCfg = convertDatabaseConfig(&app.Config{Database: app.DatabaseConfig{
		Driver: "mysql",
		MySQL:  app.DBAuthConfig{Host: "mysql", Port: 3306},
	}})
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql", dbCfg.Host)
	require.Equal(t, 3306, dbCfg.Port)
}

func TestLoadApplicationConfig(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 9100\n"), 0o600))

	cfg, err := loadApplicationConfig(file)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
}

func TestRunRejectsUnknownFlags(t *testing.T) {
	err := run(context.Background(), []string{"-no-such-flag"})
	require.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-config", "/etc/loandesk", "-sweep-once"})
	require.NoError(t, err)
	require.Equal(t, "/etc/loandesk", opts.configPath)
	require.True(t, opts.sweepOnce)
}

func TestSweepOnce(t *testing.T) {
	stack, err := bootstrapRuntime(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NoError(t, sweepOnce(context.Background(), stack, zap.NewNop()))

	cfg := testConfig(t)
	cfg.Scheduler.Enabled = false
	idle, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { idle.Shutdown(context.Background(), zap.NewNop()) })

	require.ErrorIs(t, sweepOnce(context.Background(), idle, zap.NewNop()), errSchedulerDisabled)
}
