package kernel

// Equalize performs the per-subcarrier complex GEMV x̂ = W·y (spec.md
// §4.7): w is the UEUsers×BSAntennas precoder row-major, y is the
// BSAntennas received samples for this subcarrier, xHat receives the
// UEUsers estimated symbols.
func Equalize(w []complex64, bsAnt, ueNum int, y []complex64, xHat []complex64) {
	for u := 0; u < ueNum; u++ {
		var sum complex64
		row := w[u*bsAnt : u*bsAnt+bsAnt]
		for a := 0; a < bsAnt; a++ {
			sum += row[a] * y[a]
		}
		xHat[u] = sum
	}
}
