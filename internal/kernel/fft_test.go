package kernel

import "testing"

func TestFFTThenIFFTIsIdentity(t *testing.T) {
	const n = 64
	x := make([]complex64, n)
	rng := splitmix64(42)
	orig := make([]complex64, n)
	for i := range x {
		re := float32(int32(rng()%200) - 100)
		im := float32(int32(rng()%200) - 100)
		x[i] = complex(re, im)
		orig[i] = x[i]
	}

	FFT(x)
	IFFT(x)

	for i := range x {
		d := x[i] - orig[i]
		mag := real(d)*real(d) + imag(d)*imag(d)
		if mag > 1.0 {
			t.Fatalf("sample %d: got %v, want %v (diff %v)", i, x[i], orig[i], d)
		}
	}
}

func TestCyclicPrefixInsertThenRemove(t *testing.T) {
	const cpLen = 4
	sym := []complex64{1, 2, 3, 4, 5, 6, 7, 8}
	dst := make([]complex64, cpLen+len(sym))
	CyclicPrefixInsert(dst, sym, cpLen)

	if got := dst[:cpLen]; got[0] != sym[len(sym)-cpLen] {
		t.Fatalf("expected cyclic prefix to mirror the tail of the symbol")
	}

	recovered := CyclicPrefixRemove(dst, cpLen)
	for i := range sym {
		if recovered[i] != sym[i] {
			t.Fatalf("sample %d mismatch after prefix removal: got %v want %v", i, recovered[i], sym[i])
		}
	}
}

func TestIQComplexRoundTrip(t *testing.T) {
	iq := []int16{100, -200, 32767, -32768}
	c := IQToComplex(iq)
	out := make([]int16, len(iq))
	ComplexToIQ(c, out)
	for i := range iq {
		if out[i] != iq[i] {
			t.Fatalf("sample %d mismatch: got %d want %d", i, out[i], iq[i])
		}
	}
}
