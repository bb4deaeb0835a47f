// Package kernel holds thin, cache-aware adapters over the numeric
// kernels spec.md §4.7 treats as opaque (FFT, cGEMM, pinv, (de)modulation,
// LDPC). The transform math itself is adapted from the teacher's
// dsp.go radix-2 Cooley-Tukey FFT, generalized here from its original
// fixed dBm-power-spectrum use case into an in-place complex64 transform
// usable for both the uplink FFT and the downlink IFFT.
package kernel

import "math/cmplx"

// FFT performs an in-place Cooley-Tukey FFT on x, whose length must be a
// power of two (OFDM_CA_NUM). Adapted from the teacher's dsp.go `fft`
// (same bit-reversal permutation plus iterative butterfly structure),
// generalized from complex128 to complex64 and from a one-shot
// allocation into an in-place transform suitable for a zero-allocation
// hot path.
func FFT(x []complex64) {
	transform(x, false)
}

// IFFT performs an in-place inverse FFT, scaling by 1/n.
func IFFT(x []complex64) {
	transform(x, true)
	n := complex64(complex(1/float32(len(x)), 0))
	for i := range x {
		x[i] *= n
	}
}

func transform(x []complex64, inverse bool) {
	n := len(x)
	if n <= 1 {
		return
	}

	bitReverse(x)

	sign := float64(-1)
	if inverse {
		sign = 1
	}

	for size := 2; size <= n; size *= 2 {
		half := size / 2
		step := n / size
		for i := 0; i < n; i += size {
			k := 0
			for j := i; j < i+half; j++ {
				angle := sign * 2 * pi * float64(k) / float64(n)
				w := complex64(cmplx.Exp(complex(0, angle)))
				t := x[j+half] * w
				x[j+half] = x[j] - t
				x[j] = x[j] + t
				k += step
			}
		}
	}
}

const pi = 3.14159265358979323846

// bitReverse permutes x in place into bit-reversal order, the
// precondition for the iterative butterfly pass above.
func bitReverse(x []complex64) {
	n := len(x)
	bits := 0
	for t := n; t > 1; t >>= 1 {
		bits++
	}
	for i := 0; i < n; i++ {
		j := 0
		for k := 0; k < bits; k++ {
			if i&(1<<k) != 0 {
				j |= 1 << (bits - 1 - k)
			}
		}
		if j > i {
			x[i], x[j] = x[j], x[i]
		}
	}
}

// CyclicPrefixRemove drops the first cpLen samples of a received OFDM
// symbol before FFT — the adapter boundary step spec.md §4.7 requires.
func CyclicPrefixRemove(sym []complex64, cpLen int) []complex64 {
	return sym[cpLen:]
}

// CyclicPrefixInsert prepends a copy of the last cpLen samples of sym
// (the standard OFDM cyclic prefix) ahead of IFFT's output for
// transmission, writing into dst which must have room for
// cpLen+len(sym).
func CyclicPrefixInsert(dst, sym []complex64, cpLen int) {
	copy(dst[:cpLen], sym[len(sym)-cpLen:])
	copy(dst[cpLen:], sym)
}

// IQToComplex converts interleaved int16 I/Q samples (the wire format,
// spec.md §6) into complex64, the FFT adapter's int16↔float32 boundary
// conversion.
func IQToComplex(iq []int16) []complex64 {
	n := len(iq) / 2
	out := make([]complex64, n)
	for i := 0; i < n; i++ {
		out[i] = complex(float32(iq[2*i]), float32(iq[2*i+1]))
	}
	return out
}

// ComplexToIQ converts complex64 samples back into interleaved int16,
// clamping to the int16 range.
func ComplexToIQ(x []complex64, out []int16) {
	for i, c := range x {
		out[2*i] = clampInt16(real(c))
		out[2*i+1] = clampInt16(imag(c))
	}
}

func clampInt16(v float32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
