package tag

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		typ     Type
		frame   uint32
		symbol  uint16
		idx     uint16
	}{
		{TypeAntennas, 0, 0, 0},
		{TypeUsers, 12345, 7, 63},
		{TypeSubcarriers, 0xFFFFFFFE, 65535, 1199},
		{TypeFrmSym, 1, 2, 0},
	}

	for _, c := range cases {
		tg := Encode(c.typ, c.frame, c.symbol, c.idx)
		got := Decode(tg)
		if got.FrameID != c.frame || got.SymbolID != c.symbol || got.Idx != c.idx || got.Type != c.typ {
			t.Fatalf("roundtrip mismatch for %+v: got %+v", c, got)
		}
	}
}

func TestTagEqualityOnFullWord(t *testing.T) {
	a := Encode(TypeAntennas, 5, 2, 3)
	b := Encode(TypeAntennas, 5, 2, 3)
	c := Encode(TypeUsers, 5, 2, 3)

	if a != b {
		t.Fatalf("expected identical fields to produce equal tags")
	}
	if a == c {
		t.Fatalf("expected different discriminants to produce different tags")
	}
}

func TestStaleAfterWraparound(t *testing.T) {
	const f = 40
	if StaleAfter(100, 100, f) {
		t.Fatal("current frame must not be stale")
	}
	if !StaleAfter(100, 59, f) {
		t.Fatal("frame older than F slots must be stale")
	}
	if StaleAfter(100, 61, f) {
		t.Fatal("frame within F slots must not be stale")
	}
}
