package supervisor

import (
	"os"
	"time"
)

// statResponsive performs a time-capped stat of a mount's staging path,
// so a hung mount (kernel request blocked forever) cannot stall the
// supervisor's probe loop (spec.md §4.6).
func statResponsive(path string, timeout time.Duration) bool {
	done := make(chan bool, 1)
	go func() {
		_, err := os.Stat(path)
		done <- err == nil
	}()

	select {
	case ok := <-done:
		return ok
	case <-time.After(timeout):
		return false
	}
}
