package supervisor

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/objectfs/roset/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpawner simulates a mount process that may exit immediately
// (alwaysDead) or stay alive, without ever touching os/exec.
type fakeSpawner struct {
	mu         sync.Mutex
	nextPID    int32
	alwaysDead bool
	alive      map[int]bool
	spawnCount int
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{alive: make(map[int]bool)}
}

func (f *fakeSpawner) Spawn(ctx context.Context, params SpawnParams) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawnCount++
	pid := int(atomic.AddInt32(&f.nextPID, 1))
	f.alive[pid] = !f.alwaysDead
	return pid, nil
}

func (f *fakeSpawner) IsAlive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeSpawner) Terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, pid)
	return nil
}

var _ ProcessSpawner = (*fakeSpawner)(nil)

func testConfig() config.SupervisorConfig {
	return config.SupervisorConfig{
		SecretsDir:          "",
		HealthCheckInterval: time.Millisecond,
		ProbeTimeout:        time.Millisecond,
		InitialBackoff:      time.Millisecond,
		MaxBackoff:          4 * time.Millisecond,
		CrashLoopThreshold:  5,
		CrashLoopWindow:     time.Minute,
	}
}

func TestRegisterSpawnsAndWritesSecretFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.SecretsDir = dir
	spawner := newFakeSpawner()
	s := New(cfg, spawner)

	err := s.Register(context.Background(), "vol-1", dir, "mount-1", "s3cr3t", nil)
	require.NoError(t, err)

	state, ok := s.State("vol-1")
	require.True(t, ok)
	assert.NotZero(t, state.PID)
	assert.Equal(t, 1, spawner.spawnCount)

	secretPath, err := secretFilePath(cfg.SecretsDir, "vol-1")
	require.NoError(t, err)
	data, err := os.ReadFile(secretPath)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", string(data))
}

func TestUnregisterRemovesSecretFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.SecretsDir = dir
	s := New(cfg, newFakeSpawner())

	require.NoError(t, s.Register(context.Background(), "vol-1", dir, "mount-1", "secret", nil))
	require.NoError(t, s.Unregister(context.Background(), "vol-1"))

	_, ok := s.State("vol-1")
	assert.False(t, ok)

	secretPath, err := secretFilePath(dir, "vol-1")
	require.NoError(t, err)
	_, err = os.ReadFile(secretPath)
	assert.Error(t, err)
}

func TestRestartDoublesBackoffAndTripsCrashLoop(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.SecretsDir = dir
	cfg.CrashLoopThreshold = 5
	cfg.CrashLoopWindow = time.Minute
	spawner := newFakeSpawner()
	s := New(cfg, spawner)

	require.NoError(t, s.Register(context.Background(), "vol-1", dir, "mount-1", "secret", nil))

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		s.restart(ctx, "vol-1")
		assert.False(t, s.IsInCrashLoop("vol-1"), "should not be in crash loop before threshold")
	}
	s.restart(ctx, "vol-1")
	assert.True(t, s.IsInCrashLoop("vol-1"), "5th restart within the window should trip crash loop")

	state, ok := s.State("vol-1")
	require.True(t, ok)
	assert.Equal(t, 5, state.RestartCount)
	assert.Equal(t, cfg.MaxBackoff, state.CurrentBackoff)
}

func TestRegisterFailsFastWhenAlreadyInCrashLoop(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.SecretsDir = dir
	cfg.CrashLoopThreshold = 1
	s := New(cfg, newFakeSpawner())

	require.NoError(t, s.Register(context.Background(), "vol-1", dir, "mount-1", "secret", nil))
	s.restart(context.Background(), "vol-1")
	require.True(t, s.IsInCrashLoop("vol-1"))

	err := s.Register(context.Background(), "vol-1", dir, "mount-1", "secret", nil)
	assert.Error(t, err)
}

func TestProbeAllRestartsDeadVolume(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.SecretsDir = dir
	spawner := newFakeSpawner()
	spawner.alwaysDead = true
	s := New(cfg, spawner)

	require.NoError(t, s.Register(context.Background(), "vol-1", dir, "mount-1", "secret", nil))
	assert.Equal(t, 1, spawner.spawnCount)

	s.probeAll(context.Background())
	assert.Equal(t, 2, spawner.spawnCount, "a dead process should trigger a respawn")

	state, ok := s.State("vol-1")
	require.True(t, ok)
	assert.Equal(t, 1, state.RestartCount)
}

func TestSpawnParamsArgsMatchesMountProcessCommandLine(t *testing.T) {
	p := SpawnParams{
		MountPoint:  "/mnt/vol",
		KeyFilePath: "/var/run/secrets/roset/vol-1.key",
		MountID:     "mount-1",
		ReadOnly:    true,
		AllowOther:  true,
	}
	args := p.Args()
	assert.Contains(t, args, "--mountpoint")
	assert.Contains(t, args, "/mnt/vol")
	assert.Contains(t, args, "--api-key-file")
	assert.Contains(t, args, "--mount-id")
	assert.Contains(t, args, "--read-only")
	assert.Contains(t, args, "--allow-other")
}
