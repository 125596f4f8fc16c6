package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/objectfs/roset/pkg/utils"
	"gopkg.in/yaml.v2"
)

// DurabilityMode governs how close()/fsync() interact with the staging
// queue.
type DurabilityMode string

const (
	// DurabilitySync blocks release() until the upload completes.
	DurabilitySync DurabilityMode = "sync"
	// DurabilityAsync enqueues to the staging engine and returns immediately.
	DurabilityAsync DurabilityMode = "async"
	// DurabilitySyncOnFsync behaves like async at release, but fsync blocks.
	DurabilitySyncOnFsync DurabilityMode = "sync_on_fsync"
)

// Configuration is the complete mount-process configuration.
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Mount      MountConfig      `yaml:"mount"`
	API        APIConfig        `yaml:"api"`
	Cache      CacheConfig      `yaml:"cache"`
	Staging    StagingConfig    `yaml:"staging"`
	Network    NetworkConfig    `yaml:"network"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents process-wide settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
}

// MountConfig describes the local mount point and its POSIX-facing options.
type MountConfig struct {
	MountID     string `yaml:"mount_id"`
	TenantID    string `yaml:"tenant_id"`
	MountPoint  string `yaml:"mount_point"`
	ReadOnly    bool   `yaml:"read_only"`
	AllowOther  bool   `yaml:"allow_other"`
	ReadAheadKB int    `yaml:"read_ahead_kb"`
	UID         uint32 `yaml:"uid"`
	GID         uint32 `yaml:"gid"`
}

// APIConfig describes how to reach the remote tenant-scoped tree API.
type APIConfig struct {
	BaseURL            string        `yaml:"base_url"`
	BearerTokenFile     string        `yaml:"bearer_token_file"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	URLRefreshBuffer    time.Duration `yaml:"url_refresh_buffer"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
}

// CacheConfig configures the four metadata/negative-lookup caches.
type CacheConfig struct {
	NodesMaxEntries    int           `yaml:"nodes_max_entries"`
	ChildrenMaxEntries int           `yaml:"children_max_entries"`
	MutableTTL         time.Duration `yaml:"mutable_ttl"`
	NegativeTTL        time.Duration `yaml:"negative_ttl"`
}

// StagingConfig configures the write-back staging engine and multipart
// uploader.
type StagingConfig struct {
	Directory        string         `yaml:"directory"`
	Durability       DurabilityMode `yaml:"durability"`
	PartSize         int64          `yaml:"part_size"`
	MaxParallelParts int            `yaml:"max_parallel_parts"`
	Workers          int            `yaml:"workers"`
	QueueCapacity    int            `yaml:"queue_capacity"`
	MaxAttempts      int            `yaml:"max_attempts"`
	DeadLetterDir    string         `yaml:"dead_letter_dir"`
}

// NetworkConfig configures retry and circuit-breaker behavior around the
// API client.
type NetworkConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig represents retry settings.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Jitter       bool          `yaml:"jitter"`
}

// CircuitBreakerConfig represents circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
}

// SupervisorConfig configures the mount lifecycle supervisor.
type SupervisorConfig struct {
	SecretsDir          string        `yaml:"secrets_dir"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	InitialBackoff      time.Duration `yaml:"initial_backoff"`
	MaxBackoff          time.Duration `yaml:"max_backoff"`
	CrashLoopThreshold  int           `yaml:"crash_loop_threshold"`
	CrashLoopWindow     time.Duration `yaml:"crash_loop_window"`
}

// MonitoringConfig represents monitoring settings.
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled    bool `yaml:"enabled"`
	Prometheus bool `yaml:"prometheus"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Structured bool   `yaml:"structured"`
	Format     string `yaml:"format"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			MetricsPort: 9090,
		},
		Mount: MountConfig{
			ReadAheadKB: 128,
		},
		API: APIConfig{
			RequestTimeout:      30 * time.Second,
			URLRefreshBuffer:    60 * time.Second,
			MaxIdleConnsPerHost: 16,
		},
		Cache: CacheConfig{
			NodesMaxEntries:    100000,
			ChildrenMaxEntries: 20000,
			MutableTTL:         5 * time.Second,
			NegativeTTL:        60 * time.Second,
		},
		Staging: StagingConfig{
			Directory:        "/var/lib/roset/staging",
			Durability:       DurabilityAsync,
			PartSize:         20 * 1024 * 1024,
			MaxParallelParts: 5,
			Workers:          4,
			QueueCapacity:    256,
			MaxAttempts:      5,
			DeadLetterDir:    "/var/lib/roset/staging/failed",
		},
		Network: NetworkConfig{
			Retry: RetryConfig{
				MaxAttempts:  5,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     30 * time.Second,
				Jitter:       true,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Interval:         30 * time.Second,
				Timeout:          60 * time.Second,
			},
		},
		Supervisor: SupervisorConfig{
			SecretsDir:          "/var/run/secrets/roset",
			HealthCheckInterval: 30 * time.Second,
			ProbeTimeout:        5 * time.Second,
			InitialBackoff:      1 * time.Second,
			MaxBackoff:          60 * time.Second,
			CrashLoopThreshold:  5,
			CrashLoopWindow:     5 * time.Minute,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Prometheus: true,
			},
			Logging: LoggingConfig{
				Structured: true,
				Format:     "json",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overlays environment variables onto the configuration.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("ROSET_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("ROSET_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("ROSET_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}
	if val := os.Getenv("ROSET_MOUNT_ID"); val != "" {
		c.Mount.MountID = val
	}
	if val := os.Getenv("ROSET_TENANT_ID"); val != "" {
		c.Mount.TenantID = val
	}
	if val := os.Getenv("ROSET_MOUNT_POINT"); val != "" {
		c.Mount.MountPoint = val
	}
	if val := os.Getenv("ROSET_READ_ONLY"); val != "" {
		c.Mount.ReadOnly = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("ROSET_API_BASE_URL"); val != "" {
		c.API.BaseURL = val
	}
	if val := os.Getenv("ROSET_API_BEARER_TOKEN_FILE"); val != "" {
		c.API.BearerTokenFile = val
	}
	if val := os.Getenv("ROSET_STAGING_DIR"); val != "" {
		c.Staging.Directory = val
	}
	if val := os.Getenv("ROSET_DURABILITY"); val != "" {
		c.Staging.Durability = DurabilityMode(val)
	}
	if val := os.Getenv("ROSET_STAGING_PART_SIZE"); val != "" {
		size, err := utils.ParseBytes(val)
		if err != nil {
			return fmt.Errorf("ROSET_STAGING_PART_SIZE: %w", err)
		}
		c.Staging.PartSize = size
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	if c.Mount.MountID == "" {
		return fmt.Errorf("mount.mount_id is required")
	}
	if c.Mount.MountPoint == "" {
		return fmt.Errorf("mount.mount_point is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}

	switch c.Staging.Durability {
	case DurabilitySync, DurabilityAsync, DurabilitySyncOnFsync:
	default:
		return fmt.Errorf("invalid staging.durability: %s (must be sync, async, or sync_on_fsync)", c.Staging.Durability)
	}

	if c.Staging.PartSize <= 0 {
		return fmt.Errorf("staging.part_size must be greater than 0")
	}
	if c.Staging.MaxParallelParts <= 0 {
		return fmt.Errorf("staging.max_parallel_parts must be greater than 0")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}
