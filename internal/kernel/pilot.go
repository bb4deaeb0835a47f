package kernel

import "math"

// GeneratePilot returns a deterministic, unit-magnitude Zadoff-Chu-style
// pilot sequence of length n for user u, known identically at both ends
// of the link without any handshake (spec.md §4.1's "known pilot
// sequence" CSI estimation depends on).
func GeneratePilot(u, n int) []complex64 {
	root := 1 + u%(n-1)
	out := make([]complex64, n)
	for k := 0; k < n; k++ {
		phase := -math.Pi * float64(root) * float64(k) * float64(k+1) / float64(n)
		out[k] = complex64(complex(math.Cos(phase), math.Sin(phase)))
	}
	return out
}
