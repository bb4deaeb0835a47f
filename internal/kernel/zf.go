package kernel

import "math/cmplx"

// ZFResult is the regularized zero-forcing precoder for one subcarrier
// plus a numerical-stability flag (spec.md §4.7: "numerically unstable
// subcarriers... are flagged; downstream equalization proceeds
// regardless").
type ZFResult struct {
	W         []complex64 // UEUsers × BSAntennas, row-major
	Unstable  bool
}

// ComputeZF computes W = (HᴴH + λI)⁻¹Hᴴ, the regularized pseudoinverse of
// the BSAntennas×UEUsers CSI matrix h (row-major, [antenna*ueNum+user]),
// producing the UEUsers×BSAntennas precoder spec.md §4.7 calls for. reg
// is the Tikhonov regularization (avoids a singular HᴴH on correlated
// channels); condThresh flags subcarriers whose smallest normal-equation
// pivot falls below it.
func ComputeZF(h []complex64, bsAnt, ueNum int, reg float64, condThresh float64) ZFResult {
	// hh = Hᴴ H, a ueNum x ueNum Gram matrix.
	hh := make([]complex64, ueNum*ueNum)
	for i := 0; i < ueNum; i++ {
		for j := 0; j < ueNum; j++ {
			var sum complex64
			for a := 0; a < bsAnt; a++ {
				sum += cmplx64Conj(h[a*ueNum+i]) * h[a*ueNum+j]
			}
			if i == j {
				sum += complex64(complex(reg, 0))
			}
			hh[i*ueNum+j] = sum
		}
	}

	inv, minPivot, ok := invertComplex(hh, ueNum)
	unstable := !ok || minPivot < condThresh
	if !ok {
		return ZFResult{W: make([]complex64, ueNum*bsAnt), Unstable: true}
	}

	// W = inv · Hᴴ  (ueNum x ueNum) · (ueNum x bsAnt) = ueNum x bsAnt
	w := make([]complex64, ueNum*bsAnt)
	for i := 0; i < ueNum; i++ {
		for a := 0; a < bsAnt; a++ {
			var sum complex64
			for k := 0; k < ueNum; k++ {
				sum += inv[i*ueNum+k] * cmplx64Conj(h[a*ueNum+k])
			}
			w[i*bsAnt+a] = sum
		}
	}

	return ZFResult{W: w, Unstable: unstable}
}

func cmplx64Conj(c complex64) complex64 {
	return complex64(cmplx.Conj(complex128(c)))
}

// invertComplex inverts an n×n complex matrix (row-major) via Gauss-Jordan
// elimination with partial pivoting, returning the smallest pivot
// magnitude seen (a cheap stand-in for a condition number) and whether
// inversion succeeded without a zero pivot.
func invertComplex(m []complex64, n int) (inv []complex64, minPivot float64, ok bool) {
	aug := make([]complex128, n*2*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			aug[i*2*n+j] = complex128(m[i*n+j])
		}
		aug[i*2*n+n+i] = 1
	}

	minPivot = -1
	for col := 0; col < n; col++ {
		pivotRow := col
		best := cmplx.Abs(aug[col*2*n+col])
		for r := col + 1; r < n; r++ {
			if v := cmplx.Abs(aug[r*2*n+col]); v > best {
				best = v
				pivotRow = r
			}
		}
		if pivotRow != col {
			for k := 0; k < 2*n; k++ {
				aug[col*2*n+k], aug[pivotRow*2*n+k] = aug[pivotRow*2*n+k], aug[col*2*n+k]
			}
		}

		pivot := aug[col*2*n+col]
		mag := cmplx.Abs(pivot)
		if minPivot < 0 || mag < minPivot {
			minPivot = mag
		}
		if mag == 0 {
			return nil, 0, false
		}
		for k := 0; k < 2*n; k++ {
			aug[col*2*n+k] /= pivot
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r*2*n+col]
			if factor == 0 {
				continue
			}
			for k := 0; k < 2*n; k++ {
				aug[r*2*n+k] -= factor * aug[col*2*n+k]
			}
		}
	}

	inv = make([]complex64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			inv[i*n+j] = complex64(aug[i*2*n+n+j])
		}
	}
	return inv, minPivot, true
}
