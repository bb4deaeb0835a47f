package affinity

import "testing"

func TestPinNegativeCoreIsANoOp(t *testing.T) {
	Pin(-1) // must not panic regardless of platform
}

func TestPinValidCoreDoesNotPanic(t *testing.T) {
	Pin(0)
}
