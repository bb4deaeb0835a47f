package ring

import "testing"

func TestHandleWrapsOnFrameSlots(t *testing.T) {
	r := New[complex64](4, 2, 8)

	h1 := r.Handle(0, 1, 3)
	h2 := r.Handle(4, 1, 3) // same slot as frame 0 (4 mod 4 == 0)

	if h1.Slot != h2.Slot {
		t.Fatalf("expected frame 0 and frame 4 to share slot, got %d and %d", h1.Slot, h2.Slot)
	}

	p1 := r.At(h1)
	*p1 = complex(1, 2)

	p2 := r.At(h2)
	if *p2 != complex(1, 2) {
		t.Fatalf("expected slot reuse to alias the same storage, got %v", *p2)
	}
}

func TestOffsetMatchesSpecFormula(t *testing.T) {
	r := New[float32](3, 4, 5)
	slot, symbol, idx := 2, 3, 4
	got := r.Offset(slot, symbol, idx)
	want := r.pad + (slot*4+symbol)*5+idx
	if got != want {
		t.Fatalf("offset mismatch: got %d want %d", got, want)
	}
}

func TestWindowCoversRequestedEntities(t *testing.T) {
	r := New[int32](2, 1, 16)
	w := r.Window(0, 0, 0, 16)
	if len(w) != 16 {
		t.Fatalf("expected window of 16, got %d", len(w))
	}
	for i := range w {
		w[i] = int32(i)
	}
	h := r.Handle(0, 0, 10)
	if *r.At(h) != 10 {
		t.Fatalf("expected At to observe Window writes, got %d", *r.At(h))
	}
}

func TestHandleOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range idx")
		}
	}()
	r := New[byte](2, 2, 2)
	r.Handle(0, 0, 5)
}
