// Package adapter provides the composition root that wires roset's
// subsystems - API client, lookup caches, staging engine, metrics,
// health checks, and the FUSE translator - into one running mount.
package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/objectfs/roset/internal/apiclient"
	"github.com/objectfs/roset/internal/cache"
	"github.com/objectfs/roset/internal/circuit"
	"github.com/objectfs/roset/internal/config"
	"github.com/objectfs/roset/internal/fuse"
	"github.com/objectfs/roset/internal/health"
	"github.com/objectfs/roset/internal/metrics"
	"github.com/objectfs/roset/internal/staging"
	"github.com/objectfs/roset/pkg/errors"
	"github.com/objectfs/roset/pkg/retry"
	"github.com/objectfs/roset/pkg/utils"
)

// Adapter owns the lifecycle of every subsystem behind one mounted
// volume. It is the "conductor": Start brings components up in
// dependency order and mounts the filesystem; Stop unmounts first and
// tears the rest down best-effort, collecting every error along the way instead of
// stopping at the first one.
type Adapter struct {
	config *config.Configuration
	logger *utils.StructuredLogger

	api      *apiclient.Client
	nodes    *cache.NodeCache
	children *cache.ChildrenCache
	parents  *cache.ParentIndex
	negative *cache.NegativeCache
	stager   *staging.Engine

	metricsCollector *metrics.Collector
	metricsAdapter   *metrics.Adapter
	healthChecker    *health.Checker

	mountMgr fuse.PlatformFileSystem

	rootNodeID string
	started    bool
}

// New validates cfg and prepares an adapter for the tenant tree rooted
// at cfg.Mount.TenantID. It does not start any subsystem; call Start for
// that. A nil logger gets a default structured logger.
func New(cfg *config.Configuration, logger *utils.StructuredLogger) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Mount.TenantID == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "mount.tenant_id is required (it names the tenant tree's root node)")
	}

	if logger == nil {
		l, err := loggerFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		logger = l
	}

	return &Adapter{
		config:     cfg,
		logger:     logger.WithComponent("adapter"),
		rootNodeID: cfg.Mount.TenantID,
	}, nil
}

// Start brings every subsystem up and mounts the filesystem at
// cfg.Mount.MountPoint. Order: metrics, API client, caches, staging
// engine, health checks, FUSE translator, mount.
func (a *Adapter) Start(ctx context.Context) error {
	if a.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "adapter already started")
	}

	cfg := a.config
	a.logger.Info("starting mount", map[string]interface{}{
		"mount_id":    cfg.Mount.MountID,
		"tenant_id":   cfg.Mount.TenantID,
		"mount_point": cfg.Mount.MountPoint,
		"api_base":    cfg.API.BaseURL,
		"part_size":   utils.FormatBytes(cfg.Staging.PartSize),
	})

	var err error
	a.metricsCollector, err = metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Port:      cfg.Global.MetricsPort,
		Namespace: "roset",
		Subsystem: "mount",
	})
	if err != nil {
		return fmt.Errorf("init metrics collector: %w", err)
	}
	a.metricsAdapter = metrics.NewAdapter(a.metricsCollector)
	if cfg.Monitoring.Metrics.Enabled && cfg.Monitoring.Metrics.Prometheus {
		if err := a.metricsCollector.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	bearerToken, err := readBearerToken(cfg.API.BearerTokenFile)
	if err != nil {
		return fmt.Errorf("read bearer token: %w", err)
	}
	a.api = apiclient.New(apiclient.Config{
		BaseURL:             cfg.API.BaseURL,
		BearerToken:         bearerToken,
		MountID:             cfg.Mount.MountID,
		RequestTimeout:      cfg.API.RequestTimeout,
		MaxIdleConnsPerHost: cfg.API.MaxIdleConnsPerHost,
		Retry:               buildRetryConfig(cfg.Network.Retry),
		CircuitBreaker:      buildCircuitConfig(cfg.Network.CircuitBreaker),
	})

	cacheCfg := &cache.Config{
		MaxEntries: cfg.Cache.NodesMaxEntries,
		DefaultTTL: cfg.Cache.MutableTTL,
	}
	childrenCfg := &cache.Config{
		MaxEntries: cfg.Cache.ChildrenMaxEntries,
		DefaultTTL: cfg.Cache.MutableTTL,
	}
	a.nodes = cache.NewNodeCache(cacheCfg)
	a.children = cache.NewChildrenCache(childrenCfg)
	a.parents = cache.NewParentIndex(cacheCfg)
	a.negative = cache.NewNegativeCache(cacheCfg, cfg.Cache.NegativeTTL)

	a.stager, err = staging.NewEngine(cfg.Staging, a.api, a.api, a.nodes)
	if err != nil {
		return fmt.Errorf("init staging engine: %w", err)
	}

	a.healthChecker, err = health.NewChecker(&health.Config{
		Enabled:       true,
		CheckInterval: cfg.Supervisor.HealthCheckInterval,
		Timeout:       cfg.Supervisor.ProbeTimeout,
	})
	if err != nil {
		return fmt.Errorf("init health checker: %w", err)
	}
	a.healthChecker.RegisterCheck("api", health.APICheck(func(ctx context.Context) error {
		_, err := a.api.GetNode(ctx, a.rootNodeID)
		return err
	}))
	a.healthChecker.RegisterCheck("staging", health.StagingCheck(func(ctx context.Context) error {
		_, err := os.Stat(cfg.Staging.Directory)
		return err
	}))
	if err := a.healthChecker.Start(ctx); err != nil {
		return fmt.Errorf("start health checker: %w", err)
	}

	fsCfg := &fuse.Config{
		ReadOnly:         cfg.Mount.ReadOnly,
		AllowOther:       cfg.Mount.AllowOther,
		DefaultUID:       cfg.Mount.UID,
		DefaultGID:       cfg.Mount.GID,
		AttrTTL:          time.Second,
		MutableTTL:       cfg.Cache.MutableTTL,
		URLRefreshBuffer: cfg.API.URLRefreshBuffer,
		Durability:       cfg.Staging.Durability,
		StagingDir:       cfg.Staging.Directory,
		ReaddirCap:       10000,
	}
	mountCfg := &fuse.MountConfig{
		MountPoint: cfg.Mount.MountPoint,
		Options: &fuse.MountOptions{
			ReadOnly:     cfg.Mount.ReadOnly,
			AllowOther:   cfg.Mount.AllowOther,
			DefaultPerms: true,
			MaxRead:      uint32(cfg.Mount.ReadAheadKB) * 1024,
			MaxWrite:     128 * 1024,
			FSName:       "roset",
			Subtype:      cfg.Mount.TenantID,
			AttrTimeout:  time.Second,
			EntryTimeout: time.Second,
		},
		Permissions: &fuse.Permissions{
			UID:      cfg.Mount.UID,
			GID:      cfg.Mount.GID,
			FileMode: 0644,
			DirMode:  0755,
		},
	}

	a.mountMgr = fuse.CreatePlatformMountManager(
		a.rootNodeID,
		a.api,
		a.nodes,
		a.children,
		a.parents,
		a.negative,
		a.stager,
		a.metricsAdapter,
		fsCfg,
		mountCfg,
	)

	if err := a.mountMgr.Mount(ctx); err != nil {
		return fmt.Errorf("mount filesystem: %w", err)
	}

	a.started = true
	a.logger.Info("mount started", nil)
	return nil
}

// Stop tears every subsystem down in reverse order, best-effort: a
// failure unmounting doesn't prevent the staging engine and caches from
// still being closed. It returns the last error seen, if any.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.started {
		return errors.NewError(errors.ErrCodeInvalidState, "adapter not started")
	}

	a.logger.Info("stopping mount", nil)
	var lastErr error

	if a.mountMgr != nil && a.mountMgr.IsMounted() {
		if err := a.mountMgr.Unmount(); err != nil {
			a.logger.Error("unmount failed", map[string]interface{}{"error": err.Error()})
			lastErr = err
		}
	}

	if a.stager != nil {
		if err := a.stager.Close(); err != nil {
			a.logger.Error("staging engine close failed", map[string]interface{}{"error": err.Error()})
			lastErr = err
		}
	}

	if a.healthChecker != nil {
		if err := a.healthChecker.Stop(); err != nil {
			a.logger.Error("health checker stop failed", map[string]interface{}{"error": err.Error()})
			lastErr = err
		}
	}

	for _, c := range []interface{ Close() }{a.nodes, a.children, a.parents, a.negative} {
		c.Close()
	}

	if a.metricsCollector != nil {
		if err := a.metricsCollector.Stop(ctx); err != nil {
			a.logger.Error("metrics server stop failed", map[string]interface{}{"error": err.Error()})
			lastErr = err
		}
	}

	a.started = false
	a.logger.Info("mount stopped", nil)
	return lastErr
}

// Stats returns the filesystem translator's operation counters, or the
// zero value if the adapter hasn't started.
func (a *Adapter) Stats() *fuse.FilesystemStats {
	if a.mountMgr == nil {
		return &fuse.FilesystemStats{}
	}
	return a.mountMgr.GetStats()
}

// readBearerToken reads the API bearer token from a file rather than
// accepting it as a config value directly, so it never ends up in a
// YAML file or process argument list.
func readBearerToken(path string) (string, error) {
	if path == "" {
		return "", errors.NewError(errors.ErrCodeMissingConfig, "api.bearer_token_file is required")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	return trimTrailingNewline(string(data)), nil
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// loggerFromConfig builds a StructuredLogger from cfg.Global when the
// caller of New doesn't supply its own logger. A non-empty LogFile
// switches the logger onto a rotating file sink instead of stdout.
func loggerFromConfig(cfg *config.Configuration) (*utils.StructuredLogger, error) {
	level, err := utils.ParseLogLevel(cfg.Global.LogLevel)
	if err != nil {
		level = utils.INFO
	}

	loggerCfg := utils.DefaultStructuredLoggerConfig()
	loggerCfg.Level = level
	if cfg.Global.LogFile != "" {
		loggerCfg.Rotation = &utils.RotationConfig{
			Filename:   cfg.Global.LogFile,
			MaxSize:    100,
			MaxAge:     14,
			MaxBackups: 5,
			Compress:   true,
		}
	}
	return utils.NewStructuredLogger(loggerCfg)
}

// buildRetryConfig overlays the configured retry knobs onto the
// package's default retryable-error-code list, so operators can tune
// timing without having to restate the whole code list.
func buildRetryConfig(cfg config.RetryConfig) retry.Config {
	out := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		out.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelay > 0 {
		out.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		out.MaxDelay = cfg.MaxDelay
	}
	out.Jitter = cfg.Jitter
	return out
}

// buildCircuitConfig translates the app-level threshold/interval/timeout
// shape into circuit.Config's ReadyToTrip closure.
func buildCircuitConfig(cfg config.CircuitBreakerConfig) circuit.Config {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return circuit.Config{
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
		ReadyToTrip: func(counts circuit.Counts) bool {
			return cfg.Enabled && counts.ConsecutiveFailures >= threshold
		},
	}
}
