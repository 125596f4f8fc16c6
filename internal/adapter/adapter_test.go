package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/objectfs/roset/internal/circuit"
	"github.com/objectfs/roset/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	dir := t.TempDir()

	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("s3cr3t-token\n"), 0o600))

	cfg := config.NewDefault()
	cfg.Mount.MountID = "mount-1"
	cfg.Mount.TenantID = "tenant-1"
	cfg.Mount.MountPoint = filepath.Join(dir, "mnt")
	cfg.API.BaseURL = "https://api.example.com"
	cfg.API.BearerTokenFile = tokenFile
	cfg.Staging.Directory = filepath.Join(dir, "staging")
	cfg.Global.MetricsPort = 0
	cfg.Monitoring.Metrics.Enabled = false
	return cfg
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mount.MountID = ""

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestNewRequiresTenantID(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mount.TenantID = ""

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id")
}

func TestNewSetsRootNodeIDFromTenantID(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", a.rootNodeID)
	assert.False(t, a.started)
}

func TestAdapterDoubleStart(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)
	a.started = true

	err = a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestAdapterStopNotStarted(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)

	err = a.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestStartFailsFastOnUnreadableBearerTokenFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.BearerTokenFile = filepath.Join(t.TempDir(), "does-not-exist")

	a, err := New(cfg, nil)
	require.NoError(t, err)

	err = a.Start(context.Background())
	require.Error(t, err)
	assert.False(t, a.started)
}

func TestReadBearerTokenTrimsTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("abc123\n"), 0o600))

	token, err := readBearerToken(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestReadBearerTokenRequiresPath(t *testing.T) {
	_, err := readBearerToken("")
	assert.Error(t, err)
}

func TestLoggerFromConfigFallsBackToInfoOnBadLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Global.LogLevel = "not-a-level"

	logger, err := loggerFromConfig(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoggerFromConfigUsesRotatingFileWhenLogFileSet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Global.LogFile = filepath.Join(t.TempDir(), "roset.log")
	cfg.Global.LogLevel = "DEBUG"

	logger, err := loggerFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("hello")
	data, err := os.ReadFile(cfg.Global.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestBuildRetryConfigOverlaysOnlySetFields(t *testing.T) {
	cfg := config.RetryConfig{MaxAttempts: 3}

	rc := buildRetryConfig(cfg)
	assert.Equal(t, 3, rc.MaxAttempts)
	assert.NotZero(t, rc.InitialDelay, "unset fields should fall back to retry.DefaultConfig")
	assert.NotEmpty(t, rc.RetryableErrors)
}

func TestBuildCircuitConfigReadyToTripHonorsThreshold(t *testing.T) {
	cfg := config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 3,
		Interval:         time.Second,
		Timeout:          2 * time.Second,
	}

	cc := buildCircuitConfig(cfg)
	assert.False(t, cc.ReadyToTrip(circuit.Counts{ConsecutiveFailures: 2}))
	assert.True(t, cc.ReadyToTrip(circuit.Counts{ConsecutiveFailures: 3}))
}

func TestBuildCircuitConfigDisabledNeverTrips(t *testing.T) {
	cfg := config.CircuitBreakerConfig{Enabled: false, FailureThreshold: 1}

	cc := buildCircuitConfig(cfg)
	assert.False(t, cc.ReadyToTrip(circuit.Counts{ConsecutiveFailures: 100}))
}
