package utils

import "runtime"

// EnableRuntimeProfiling turns on Go's block and mutex profiling, so a
// mount started with --debug exposes contention data to an operator
// attaching pprof, without every mount paying the sampling overhead.
func EnableRuntimeProfiling() {
	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)
}

// DisableRuntimeProfiling turns block and mutex profiling back off.
func DisableRuntimeProfiling() {
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
}
