//go:build !linux

package affinity

// Pin is a no-op off Linux, matching the teacher's own platform-split
// pattern (stream_loop_linux.go vs stream_loop_windows.go): affinity is
// a performance hint, not a correctness requirement.
func Pin(core int) {}
