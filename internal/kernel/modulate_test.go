package kernel

import "testing"

func TestModulateDemodulateHardZeroBitErrorsAtHighSNR(t *testing.T) {
	for _, modBits := range []int{2, 4, 6} {
		const nSymbols = 200
		totalBits := nSymbols * modBits
		bits := make([]byte, (totalBits+7)/8)
		rng := splitmix64(uint64(modBits) * 12345)
		for i := range bits {
			bits[i] = byte(rng())
		}

		syms := Modulate(bits, modBits, nSymbols)
		llr := make([]float32, nSymbols*modBits)
		Demodulate(syms, modBits, 1, false, llr)

		// Re-modulate from hard-demodulated bits and compare symbol-for-symbol;
		// at SNR=infinity (no noise added) this must be lossless.
		gotBits := make([]byte, len(bits))
		for i := 0; i < totalBits; i++ {
			bit := byte(0)
			if llr[i] < 0 {
				bit = 1
			}
			if bit != 0 {
				gotBits[i/8] |= 1 << (i % 8)
			}
		}

		for i := 0; i < len(bits); i++ {
			if gotBits[i] != bits[i] {
				t.Fatalf("modOrderBits=%d: byte %d mismatch: got %08b want %08b", modBits, i, gotBits[i], bits[i])
			}
		}
	}
}

func TestConstellationTableUnitAveragePower(t *testing.T) {
	for _, modBits := range []int{2, 4, 6} {
		table := constellationTable(modBits)
		var sum float64
		for _, c := range table {
			sum += float64(real(c))*float64(real(c)) + float64(imag(c))*float64(imag(c))
		}
		avg := sum / float64(len(table))
		if avg < 0.5 || avg > 2.0 {
			t.Fatalf("modOrderBits=%d: average constellation power %v far from unity", modBits, avg)
		}
	}
}
