// Command mount is the mounter binary: the entry point to the
// filesystem translator, invoked either directly by an operator or by
// the mount supervisor as the mount process it spawns per volume.
//
// CLI option parsing itself is out of scope (spec.md §1): this package
// defines the Config struct the mounter's and the mount-process's
// command-line flags would populate (spec.md §6), and how it maps onto
// internal/config.Configuration, but does not wire a flag/pflag parser
// to os.Args.
package main

import (
	"time"

	"github.com/objectfs/roset/internal/config"
)

// Config mirrors the union of the mounter CLI ("--api-url URL
// --api-key SECRET ... MOUNTPOINT ...") and the mount-process command
// line the supervisor produces ("--mountpoint PATH --api-key-file
// PATH --mount-id ID ..."). A manual invocation only ever needs one of
// APIKey/APIKeyFile; the supervisor always sets APIKeyFile, since it
// writes the secret to disk rather than passing it as an argument
// (see internal/supervisor/secrets.go).
type Config struct {
	APIURL     string
	APIKey     string
	APIKeyFile string
	MountID    string
	Ref        string
	MountPoint string

	Foreground bool
	Debug      bool

	CacheTTLSeconds   int
	CacheSizeMB       int
	CacheDir          string
	ReadAheadKB       int
	AllowOther        bool
	ReadOnly          bool
	StagingDir        string
	Durability        string
	URLRefreshSeconds int
}

// ToConfiguration builds a complete internal/config.Configuration from
// the flag-populated Config, starting from config.NewDefault() so any
// field the CLI leaves at its zero value keeps a sane default.
func (c Config) ToConfiguration() *config.Configuration {
	cfg := config.NewDefault()

	cfg.Mount.MountID = c.MountID
	cfg.Mount.MountPoint = c.MountPoint
	cfg.Mount.ReadOnly = c.ReadOnly
	cfg.Mount.AllowOther = c.AllowOther
	if c.ReadAheadKB > 0 {
		cfg.Mount.ReadAheadKB = c.ReadAheadKB
	}

	cfg.API.BaseURL = c.APIURL
	cfg.API.BearerTokenFile = c.APIKeyFile
	if c.URLRefreshSeconds > 0 {
		cfg.API.URLRefreshBuffer = time.Duration(c.URLRefreshSeconds) * time.Second
	}

	if c.CacheTTLSeconds > 0 {
		cfg.Cache.MutableTTL = time.Duration(c.CacheTTLSeconds) * time.Second
	}

	if c.StagingDir != "" {
		cfg.Staging.Directory = c.StagingDir
	}
	if c.Durability != "" {
		cfg.Staging.Durability = config.DurabilityMode(c.Durability)
	}

	if c.Debug {
		cfg.Global.LogLevel = "DEBUG"
	}

	return cfg
}
