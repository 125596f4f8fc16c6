package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("expected default log level INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Staging.Durability != DurabilityAsync {
		t.Errorf("expected default durability async, got %s", cfg.Staging.Durability)
	}
	if cfg.Staging.PartSize != 20*1024*1024 {
		t.Errorf("expected default part size 20MiB, got %d", cfg.Staging.PartSize)
	}
	if cfg.Staging.MaxParallelParts != 5 {
		t.Errorf("expected default max parallel parts 5, got %d", cfg.Staging.MaxParallelParts)
	}
	if cfg.Cache.NegativeTTL.Seconds() != 60 {
		t.Errorf("expected default negative TTL 60s, got %v", cfg.Cache.NegativeTTL)
	}
	if cfg.Supervisor.CrashLoopThreshold != 5 {
		t.Errorf("expected default crash loop threshold 5, got %d", cfg.Supervisor.CrashLoopThreshold)
	}
}

func TestValidate(t *testing.T) {
	validConfig := func() *Configuration {
		cfg := NewDefault()
		cfg.Mount.MountID = "mnt-1"
		cfg.Mount.MountPoint = "/mnt/roset"
		cfg.API.BaseURL = "https://api.example.com"
		return cfg
	}

	tests := []struct {
		name        string
		modifier    func(*Configuration)
		expectError bool
	}{
		{"valid configuration", func(c *Configuration) {}, false},
		{"missing mount id", func(c *Configuration) { c.Mount.MountID = "" }, true},
		{"missing mount point", func(c *Configuration) { c.Mount.MountPoint = "" }, true},
		{"missing api base url", func(c *Configuration) { c.API.BaseURL = "" }, true},
		{"invalid durability", func(c *Configuration) { c.Staging.Durability = "bogus" }, true},
		{"zero part size", func(c *Configuration) { c.Staging.PartSize = 0 }, true},
		{"zero max parallel parts", func(c *Configuration) { c.Staging.MaxParallelParts = 0 }, true},
		{"invalid log level", func(c *Configuration) { c.Global.LogLevel = "TRACE" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifier(cfg)

			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("expected no validation error, got: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yamlContent := `
mount:
  mount_id: mnt-42
  mount_point: /mnt/roset
api:
  base_url: https://api.example.com
staging:
  durability: sync
`
	if err := os.WriteFile(path, []byte(yamlContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}

	if cfg.Mount.MountID != "mnt-42" {
		t.Errorf("expected mount_id mnt-42, got %s", cfg.Mount.MountID)
	}
	if cfg.Staging.Durability != DurabilitySync {
		t.Errorf("expected durability sync, got %s", cfg.Staging.Durability)
	}
}

func TestLoadFromFileNonExistent(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading nonexistent file, got nil")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ROSET_MOUNT_ID", "mnt-env")
	t.Setenv("ROSET_API_BASE_URL", "https://env.example.com")
	t.Setenv("ROSET_DURABILITY", "sync_on_fsync")
	t.Setenv("ROSET_READ_ONLY", "true")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}

	if cfg.Mount.MountID != "mnt-env" {
		t.Errorf("expected mount_id mnt-env, got %s", cfg.Mount.MountID)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("expected base url from env, got %s", cfg.API.BaseURL)
	}
	if cfg.Staging.Durability != DurabilitySyncOnFsync {
		t.Errorf("expected durability sync_on_fsync, got %s", cfg.Staging.Durability)
	}
	if !cfg.Mount.ReadOnly {
		t.Error("expected read_only true from env")
	}
}

func TestLoadFromEnvParsesHumanReadablePartSize(t *testing.T) {
	t.Setenv("ROSET_STAGING_PART_SIZE", "16MB")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}
	if cfg.Staging.PartSize != 16*1024*1024 {
		t.Errorf("expected part size 16MB, got %d", cfg.Staging.PartSize)
	}
}

func TestLoadFromEnvRejectsInvalidPartSize(t *testing.T) {
	t.Setenv("ROSET_STAGING_PART_SIZE", "not-a-size")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for invalid ROSET_STAGING_PART_SIZE, got nil")
	}
}

func TestSaveToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewDefault()
	cfg.Mount.MountID = "mnt-save"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile returned error: %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}

	if loaded.Mount.MountID != "mnt-save" {
		t.Errorf("expected mount_id mnt-save after round trip, got %s", loaded.Mount.MountID)
	}
}

func TestSaveToFileCreateDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "sub", "config.yaml")

	cfg := NewDefault()
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile returned error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to exist at %s: %v", path, err)
	}
}
