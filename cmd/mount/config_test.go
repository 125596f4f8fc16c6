package main

import (
	"testing"
	"time"

	"github.com/objectfs/roset/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestToConfigurationAppliesOverrides(t *testing.T) {
	c := Config{
		APIURL:            "https://api.example.com",
		APIKeyFile:        "/var/run/secrets/roset/vol-1.key",
		MountID:           "mount-1",
		MountPoint:        "/mnt/vol",
		ReadOnly:          true,
		AllowOther:        true,
		ReadAheadKB:       256,
		CacheTTLSeconds:   10,
		StagingDir:        "/var/lib/roset/staging/vol-1",
		Durability:        "sync",
		URLRefreshSeconds: 120,
		Debug:             true,
	}

	cfg := c.ToConfiguration()

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, "/var/run/secrets/roset/vol-1.key", cfg.API.BearerTokenFile)
	assert.Equal(t, "mount-1", cfg.Mount.MountID)
	assert.Equal(t, "/mnt/vol", cfg.Mount.MountPoint)
	assert.True(t, cfg.Mount.ReadOnly)
	assert.True(t, cfg.Mount.AllowOther)
	assert.Equal(t, 256, cfg.Mount.ReadAheadKB)
	assert.Equal(t, 10*time.Second, cfg.Cache.MutableTTL)
	assert.Equal(t, "/var/lib/roset/staging/vol-1", cfg.Staging.Directory)
	assert.Equal(t, config.DurabilityMode("sync"), cfg.Staging.Durability)
	assert.Equal(t, 120*time.Second, cfg.API.URLRefreshBuffer)
	assert.Equal(t, "DEBUG", cfg.Global.LogLevel)
}

func TestToConfigurationKeepsDefaultsWhenUnset(t *testing.T) {
	cfg := Config{MountID: "mount-1", MountPoint: "/mnt/vol"}.ToConfiguration()

	defaults := config.NewDefault()
	assert.Equal(t, defaults.Cache.MutableTTL, cfg.Cache.MutableTTL)
	assert.Equal(t, defaults.Staging.Directory, cfg.Staging.Directory)
	assert.Equal(t, defaults.Staging.Durability, cfg.Staging.Durability)
	assert.Equal(t, defaults.Mount.ReadAheadKB, cfg.Mount.ReadAheadKB)
}
