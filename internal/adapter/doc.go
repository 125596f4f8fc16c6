/*
Package adapter is the composition root for one mounted volume.

It owns the startup and shutdown order of every subsystem behind a
mount: the API client, the four lookup caches, the staging engine, the
metrics collector, the health checker, and the FUSE translator.

# Architecture Role

	┌─────────────────────────────────────────────┐
	│            Kernel VFS/FUSE                   │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              ADAPTER LAYER                   │ ← This package
	│  wiring, startup/shutdown order, config      │
	└─────────────────────────────────────────────┘
	   │        │         │         │        │
	┌──┴──┐ ┌───┴───┐ ┌───┴────┐ ┌──┴───┐ ┌──┴────┐
	│ API │ │ Caches│ │Staging │ │Health│ │Metrics│
	│Client│ │(x4)   │ │Engine  │ │Check │ │       │
	└─────┘ └───────┘ └────────┘ └──────┘ └───────┘

# Startup sequence

	1. metrics collector (and its Prometheus HTTP server, if enabled)
	2. API client (bearer token read from file, retry + circuit breaker)
	3. the four lookup caches (nodes, children, parents, negative)
	4. staging engine (recovers any jobs left by a prior crash)
	5. health checker (api + staging probes registered, then started)
	6. FUSE translator and platform mount manager
	7. mount

# Shutdown sequence

Unmount, staging engine, health checker, the four caches, then the
metrics collector, best-effort: a failure at one step does not skip the
rest, so an unmount failure still lets the staging engine flush its
sidecar state and the caches release their memory. Stop returns the
last error seen, if any.

# Usage

	a, err := adapter.New(cfg, nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := a.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer a.Stop(ctx)

# Root node

The tenant tree's root node ID is cfg.Mount.TenantID: the remote API is
tenant-scoped, and the tenant ID is the stable handle a mount needs to
resolve "/" without a separate discovery call.
*/
package adapter
