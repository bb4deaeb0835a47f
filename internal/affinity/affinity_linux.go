//go:build linux

package affinity

import "golang.org/x/sys/unix"

// Pin pins the calling OS thread to a single CPU core, the affinity
// discipline spec.md §4.6 requires for workers ("each worker is pinned
// to a distinct core for the life of the process") and §4.8 requires for
// the sender's pacing threads. Caller must have already called
// runtime.LockOSThread. core < 0 disables pinning.
func Pin(core int) {
	if core < 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	unix.SchedSetaffinity(0, &set)
}
