package kernel

import "math"

func logf(x float32) float32 {
	return float32(math.Log(float64(x)))
}
