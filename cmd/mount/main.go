package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/objectfs/roset/internal/adapter"
	"github.com/objectfs/roset/pkg/utils"
)

// shutdownTimeout bounds how long Stop waits for the mount to unmount
// and the staging engine to drain before main returns anyway.
const shutdownTimeout = 30 * time.Second

// run wires a Config (however it was populated - by a flag parser this
// package intentionally doesn't own, or directly by a caller in tests)
// into a mounted, running Adapter, and blocks until ctx is canceled
// (SIGINT/SIGTERM, per spec.md §6) or the mount fails.
func run(ctx context.Context, cfg Config) error {
	if cfg.APIKey != "" && cfg.APIKeyFile == "" {
		keyFile, err := writeEphemeralKeyFile(cfg.APIKey)
		if err != nil {
			return fmt.Errorf("stage api key: %w", err)
		}
		defer os.Remove(keyFile)
		cfg.APIKeyFile = keyFile
	}

	if cfg.Debug {
		utils.EnableRuntimeProfiling()
		defer utils.DisableRuntimeProfiling()
	}

	a, err := adapter.New(cfg.ToConfiguration(), nil)
	if err != nil {
		return fmt.Errorf("build adapter: %w", err)
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start mount: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Stop(stopCtx)
}

// writeEphemeralKeyFile stages a bearer token handed in directly on the
// mounter CLI (--api-key) into a private file, so it flows through the
// same file-based path the supervisor's --api-key-file already uses
// rather than adapter.New growing a second, argument-shaped code path.
func writeEphemeralKeyFile(key string) (string, error) {
	dir, err := os.MkdirTemp("", "roset-mount-key-")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "api.key")
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := Config{
		APIURL:     os.Getenv("ROSET_API_URL"),
		APIKey:     os.Getenv("ROSET_API_KEY"),
		APIKeyFile: os.Getenv("ROSET_API_KEY_FILE"),
		MountID:    os.Getenv("ROSET_MOUNT_ID"),
		MountPoint: mountPointArg(),
	}

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "roset mount:", err)
		os.Exit(1)
	}
}

// mountPointArg reads the mounter CLI's one positional argument
// (MOUNTPOINT, per spec.md §6). Flag parsing for everything else is
// intentionally out of scope for this package; a real entry point
// would replace this with a full flag/pflag command line.
func mountPointArg() string {
	if len(os.Args) > 1 {
		return os.Args[len(os.Args)-1]
	}
	return ""
}
