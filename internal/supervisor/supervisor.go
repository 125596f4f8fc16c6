package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/objectfs/roset/internal/config"
	"github.com/objectfs/roset/pkg/errors"
	"github.com/objectfs/roset/pkg/types"
)

// PluginSurface is the thin RPC-shaped surface the container-orchestration
// plugin drives (spec.md §6): register a volume, unregister it, and ask
// whether it is presently crash-looping. Orchestration semantics above
// this (CSI-shaped create/delete/stage/publish) live outside this
// module's scope and call through to these three methods.
type PluginSurface interface {
	Register(ctx context.Context, volumeID, stagingPath, mountID, secret string, volContext map[string]string) error
	Unregister(ctx context.Context, volumeID string) error
	IsInCrashLoop(volumeID string) bool
}

// volume is one registered mount's live state plus the parameters needed
// to respawn it.
type volume struct {
	state  types.SupervisorState
	params SpawnParams
}

// Supervisor tracks one mount process per registered volume, probes
// liveness on a periodic loop, and restarts with exponential backoff and
// crash-loop detection.
type Supervisor struct {
	mu      sync.Mutex
	volumes map[string]*volume

	spawner    ProcessSpawner
	config     config.SupervisorConfig
	secretsDir string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a supervisor. spawner may be nil to use OSProcessSpawner.
func New(cfg config.SupervisorConfig, spawner ProcessSpawner) *Supervisor {
	if spawner == nil {
		spawner = OSProcessSpawner{}
	}
	secretsDir := cfg.SecretsDir
	if secretsDir == "" {
		secretsDir = "/var/run/secrets/roset"
	}
	return &Supervisor{
		volumes:    make(map[string]*volume),
		spawner:    spawner,
		config:     withDefaults(cfg),
		secretsDir: secretsDir,
		stopCh:     make(chan struct{}),
	}
}

// withDefaults fills the zero-value fields of a SupervisorConfig with
// spec.md §4.6's defaults (30s health check interval, 60s max backoff,
// 5-restart crash-loop threshold over a 5-minute window).
func withDefaults(cfg config.SupervisorConfig) config.SupervisorConfig {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.CrashLoopThreshold <= 0 {
		cfg.CrashLoopThreshold = 5
	}
	if cfg.CrashLoopWindow <= 0 {
		cfg.CrashLoopWindow = 5 * time.Minute
	}
	return cfg
}

// Start runs the periodic probe loop (default interval 30s) until ctx is
// canceled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.probeAll(ctx)
			}
		}
	}()
}

// Stop halts the probe loop. Registered volumes and their secret files
// are left in place; only Unregister removes them.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Register spawns a volume's mount process and begins supervising it.
// Per spec.md §4.6 the secret is written to a restricted file rather
// than passed as an argument; the spawned process receives only the file
// path.
func (s *Supervisor) Register(ctx context.Context, volumeID, stagingPath, mountID, secret string, volContext map[string]string) error {
	s.mu.Lock()
	if v, exists := s.volumes[volumeID]; exists && v.state.InCrashLoop {
		s.mu.Unlock()
		return errors.NewError(errors.ErrCodeCrashLoop, fmt.Sprintf("volume %s is in crash loop", volumeID)).
			WithComponent("supervisor").WithOperation("register")
	}
	s.mu.Unlock()

	keyFile, err := writeSecret(s.secretsDir, volumeID, secret)
	if err != nil {
		return errors.NewError(errors.ErrCodeLocalIO, "write secret file").WithCause(err).
			WithComponent("supervisor").WithOperation("register")
	}

	params := SpawnParams{
		MountPoint:  stagingPath,
		KeyFilePath: keyFile,
		MountID:     mountID,
	}

	pid, err := s.spawner.Spawn(ctx, params)
	if err != nil {
		removeSecret(s.secretsDir, volumeID)
		return errors.NewError(errors.ErrCodeMountFailed, "spawn mount process").WithCause(err).
			WithComponent("supervisor").WithOperation("register")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[volumeID] = &volume{
		params: params,
		state: types.SupervisorState{
			PID:             pid,
			StagingPath:     stagingPath,
			MountID:         mountID,
			KeyFilePath:     keyFile,
			Context:         volContext,
			LastHealthCheck: time.Now(),
		},
	}
	return nil
}

// Unregister stops supervising a volume, terminates its mount process
// (best effort), and removes its secret file.
func (s *Supervisor) Unregister(ctx context.Context, volumeID string) error {
	s.mu.Lock()
	v, exists := s.volumes[volumeID]
	if exists {
		delete(s.volumes, volumeID)
	}
	s.mu.Unlock()

	if !exists {
		return nil
	}

	s.spawner.Terminate(v.state.PID)
	return removeSecret(s.secretsDir, volumeID)
}

// IsInCrashLoop reports whether a volume has tripped the crash-loop
// threshold. An unregistered volume is never in crash loop.
func (s *Supervisor) IsInCrashLoop(volumeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, exists := s.volumes[volumeID]
	return exists && v.state.InCrashLoop
}

// State returns a snapshot of a volume's supervisor state, for
// diagnostics; ok is false if the volume isn't registered.
func (s *Supervisor) State(volumeID string) (types.SupervisorState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, exists := s.volumes[volumeID]
	if !exists {
		return types.SupervisorState{}, false
	}
	return v.state, true
}

// probeAll runs the two liveness checks (spec.md §4.6: process alive,
// mount responsive) against every registered, non-crash-looping volume,
// and restarts any that fail either.
func (s *Supervisor) probeAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.volumes))
	for id, v := range s.volumes {
		if !v.state.InCrashLoop {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		if !s.probeOne(ctx, id) {
			s.restart(ctx, id)
		}
	}
}

// probeOne runs the two liveness checks for a single volume and records
// the probe time. It returns false if either check fails.
func (s *Supervisor) probeOne(ctx context.Context, volumeID string) bool {
	s.mu.Lock()
	v, exists := s.volumes[volumeID]
	if !exists {
		s.mu.Unlock()
		return true
	}
	pid := v.state.PID
	stagingPath := v.state.StagingPath
	s.mu.Unlock()

	alive := s.spawner.IsAlive(pid)
	responsive := alive && statResponsive(stagingPath, s.config.ProbeTimeout)

	s.mu.Lock()
	if v, exists := s.volumes[volumeID]; exists {
		v.state.LastHealthCheck = time.Now()
	}
	s.mu.Unlock()

	return alive && responsive
}

// restart performs one restart cycle for a volume: advance the rolling
// crash-loop window, double the backoff, wait it out, then respawn.
// Unexported, at package scope; same-package tests call it directly
// so they can exercise the crash-loop threshold without
// waiting through real probe-loop ticks.
func (s *Supervisor) restart(ctx context.Context, volumeID string) {
	s.mu.Lock()
	v, exists := s.volumes[volumeID]
	if !exists || v.state.InCrashLoop {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	if v.state.RestartWindowStart.IsZero() || now.Sub(v.state.RestartWindowStart) > s.config.CrashLoopWindow {
		v.state.RestartWindowStart = now
		v.state.RestartCount = 0
	}
	v.state.RestartCount++

	if v.state.CurrentBackoff <= 0 {
		v.state.CurrentBackoff = s.config.InitialBackoff
	} else {
		v.state.CurrentBackoff *= 2
		if v.state.CurrentBackoff > s.config.MaxBackoff {
			v.state.CurrentBackoff = s.config.MaxBackoff
		}
	}
	backoff := v.state.CurrentBackoff
	params := v.params
	restartCount := v.state.RestartCount
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	case <-time.After(backoff):
	}

	pid, err := s.spawner.Spawn(ctx, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	v, exists = s.volumes[volumeID]
	if !exists {
		return
	}
	if err == nil {
		v.state.PID = pid
	}
	if restartCount >= s.config.CrashLoopThreshold {
		v.state.InCrashLoop = true
	}
}

var _ PluginSurface = (*Supervisor)(nil)
