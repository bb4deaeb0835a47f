// Package runctl models the process-wide shutdown signal that spec.md §9
// calls out for re-architecture: the teacher's global `running`/
// `keep_running` booleans become an explicit, observable token passed to
// every shard instead of a package-level variable mutated from a signal
// handler inside library code.
package runctl

import "sync/atomic"

// Token is a shared, atomic shutdown flag. RX/TX/worker/master loops
// check Done() at the top of every iteration (spec.md §5 cancellation);
// only cmd/* binaries call Stop(), either from a transport error or
// os/signal handling.
type Token struct {
	stopped atomic.Bool
}

// New returns a fresh, running token.
func New() *Token { return &Token{} }

// Stop sets the shared flag, draining every shard that observes it.
func (t *Token) Stop() { t.stopped.Store(true) }

// Done reports whether Stop has been called.
func (t *Token) Done() bool { return t.stopped.Load() }
