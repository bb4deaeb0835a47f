// Package counters implements the per-stage, per-slot, per-symbol arrival
// and completion counters that gate stage transitions (spec.md C4). The
// design mandates single-writer counters wherever feasible: the master
// owns stage-transition counters on its own goroutine. The PacketRX
// arrival counters use the Atomic type, which tolerates concurrent
// increments; in this repository they too are incremented only by the
// master, as it consumes PacketRX events.
package counters

import "sync/atomic"

// Stage identifies which pipeline stage's counter is being tracked.
type Stage int

const (
	StageRXAntennas Stage = iota // arrivals, atomic: incremented by RX shards
	StageFFT
	StageZF
	StageDemul
	StageDecode
)

// Single is a master-owned, single-writer counter. It is a plain int,
// never touched by any goroutine but the master's, so it needs no
// synchronization — the master's own queue-consume loop is the only
// access path (happens-before is provided by the queue itself).
type Single struct {
	n int32
}

// Inc increments and returns the new value.
func (c *Single) Inc() int32 {
	c.n++
	return c.n
}

// ResetIfTarget resets the counter to 0 if and only if it equals target,
// returning true when the reset happened. spec.md §4.3 mandates an
// equality test, never >=, because each (frame, symbol, antenna) produces
// exactly one completion.
func (c *Single) ResetIfTarget(target int32) bool {
	if c.n == target {
		c.n = 0
		return true
	}
	return false
}

// Value reads the current count (master-thread-only).
func (c *Single) Value() int32 { return c.n }

// Atomic is a counter that is safe under concurrent increments, used for
// the per-symbol PacketRX arrival counts in SlotState.
type Atomic struct {
	n atomic.Int32
}

// Inc atomically increments and returns the new value.
func (c *Atomic) Inc() int32 { return c.n.Add(1) }

// ResetIfTarget atomically resets to 0 iff the counter equals target at
// the moment of the check, returning whether the reset occurred. The
// compare-and-swap makes the check and the reset one atomic step, so a
// concurrent Inc is never lost.
func (c *Atomic) ResetIfTarget(target int32) bool {
	return c.n.CompareAndSwap(target, 0)
}

// Value reads the current count.
func (c *Atomic) Value() int32 { return c.n.Load() }

// Reset unconditionally zeroes the counter — used on slot-reuse-hazard
// recovery (spec.md §7 item 5).
func (c *Atomic) Reset() { c.n.Store(0) }

// Reset unconditionally zeroes a Single counter, same use as above.
func (c *Single) Reset() { c.n = 0 }
