// Command supervisor hosts the mount lifecycle supervisor: the
// node-side process a container-orchestration plugin drives through
// internal/supervisor.PluginSurface (register/unregister/
// is_in_crash_loop, spec.md §6). The RPC transport binding that surface
// to the plugin's wire protocol is explicitly out of scope (spec.md §1,
// DESIGN.md's internal/supervisor entry) - this binary owns the probe
// loop and process lifecycle only.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/objectfs/roset/internal/config"
	"github.com/objectfs/roset/internal/supervisor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "roset supervisor: load config:", err)
		os.Exit(1)
	}

	s := supervisor.New(cfg.Supervisor, nil)
	s.Start(ctx)

	// A real deployment binds s (as supervisor.PluginSurface) to the
	// orchestration plugin's RPC transport here. Until that transport
	// exists, the supervisor still runs its probe/restart loop for any
	// volume Register is called on in-process (e.g. from tests or a
	// future transport binding).
	<-ctx.Done()
	s.Stop()
}
