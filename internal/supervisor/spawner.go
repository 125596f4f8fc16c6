// Package supervisor implements the node-side mount lifecycle supervisor
// (spec.md §4.6): it spawns the FUSE mount process for each registered
// volume, probes it for liveness, restarts it with exponential backoff,
// and trips a crash-loop state after too many restarts inside a rolling
// window. It exposes the thin register/unregister/is_in_crash_loop
// surface the container-orchestration plugin drives (spec.md §6).
//
// There is no teacher analogue for child-process supervision -
// scttfrdmn-objectfs runs as a single foreground mount process and never
// spawns or monitors another one. This package is grounded directly on
// spec.md §4.6 and §8's crash-loop testable property, built in the same
// style as the rest of this module: explicit error returns, a single
// mutex over shared state, and small injectable seams (ProcessSpawner)
// in place of the teacher's usual fake-friendly interfaces
// (types.APIClient, types.PartUploader) so tests don't need a real
// child process.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// SpawnParams are the parameters needed to (re-)spawn a volume's mount
// process, stored verbatim in its SupervisorState so a restart can
// reproduce the exact command line (spec.md §6's mount-process command
// line).
type SpawnParams struct {
	Binary      string
	MountPoint  string
	KeyFilePath string
	MountID     string
	Ref         string
	ReadOnly    bool
	CacheDir    string
	CacheSizeGB int
	ReadAhead   int
	AllowOther  bool
}

// Args builds the mount-process command line argument list per spec.md
// §6: `--mountpoint PATH --api-key-file PATH --mount-id ID [--ref REF]
// [--read-only] [--cache-dir DIR] [--cache-size-gb N] [--read-ahead N]
// [--allow-other]`.
func (p SpawnParams) Args() []string {
	args := []string{
		"--mountpoint", p.MountPoint,
		"--api-key-file", p.KeyFilePath,
		"--mount-id", p.MountID,
	}
	if p.Ref != "" {
		args = append(args, "--ref", p.Ref)
	}
	if p.ReadOnly {
		args = append(args, "--read-only")
	}
	if p.CacheDir != "" {
		args = append(args, "--cache-dir", p.CacheDir)
	}
	if p.CacheSizeGB > 0 {
		args = append(args, "--cache-size-gb", strconv.Itoa(p.CacheSizeGB))
	}
	if p.ReadAhead > 0 {
		args = append(args, "--read-ahead", strconv.Itoa(p.ReadAhead))
	}
	if p.AllowOther {
		args = append(args, "--allow-other")
	}
	return args
}

// ProcessSpawner abstracts child-process lifecycle so the supervisor's
// restart/crash-loop logic can be tested without spawning a real mount
// process.
type ProcessSpawner interface {
	Spawn(ctx context.Context, params SpawnParams) (pid int, err error)
	IsAlive(pid int) bool
	Terminate(pid int) error
}

// OSProcessSpawner spawns the mounter binary as a real child process via
// os/exec, and probes liveness with a signal-zero syscall.
type OSProcessSpawner struct{}

func (OSProcessSpawner) Spawn(ctx context.Context, params SpawnParams) (int, error) {
	binary := params.Binary
	if binary == "" {
		binary = "roset-mount"
	}
	cmd := exec.CommandContext(context.Background(), binary, params.Args()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("supervisor: spawn %s: %w", binary, err)
	}
	// Wait in the background only to reap the child, so an exited child
	// does not linger as a zombie; the supervisor tracks liveness itself
	// via signal-zero probes.
	go cmd.Wait()
	return cmd.Process.Pid, nil
}

func (OSProcessSpawner) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func (OSProcessSpawner) Terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return process.Signal(syscall.SIGTERM)
}

var _ ProcessSpawner = OSProcessSpawner{}
