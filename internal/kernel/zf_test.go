package kernel

import "testing"

func TestZFPrecoderApproximatesInverseOnWellConditionedChannel(t *testing.T) {
	const bsAnt, ueNum = 8, 4

	// A well-conditioned channel: strong diagonal dominance across the
	// antenna groups assigned to each user, small cross terms.
	h := make([]complex64, bsAnt*ueNum)
	rng := splitmix64(7)
	for a := 0; a < bsAnt; a++ {
		for u := 0; u < ueNum; u++ {
			re := float32(int32(rng()%20)-10) / 50
			im := float32(int32(rng()%20)-10) / 50
			if a/2 == u {
				re += 2
			}
			h[a*ueNum+u] = complex(re, im)
		}
	}

	res := ComputeZF(h, bsAnt, ueNum, 1e-6, 1e-4)
	if res.Unstable {
		t.Fatal("expected a well-conditioned channel to be reported stable")
	}

	// W (ueNum x bsAnt) * H (bsAnt x ueNum) should approximate I (ueNum x ueNum).
	for i := 0; i < ueNum; i++ {
		for j := 0; j < ueNum; j++ {
			var sum complex64
			for a := 0; a < bsAnt; a++ {
				sum += res.W[i*bsAnt+a] * h[a*ueNum+j]
			}
			want := complex64(0)
			if i == j {
				want = 1
			}
			d := sum - want
			dist := real(d)*real(d) + imag(d)*imag(d)
			if dist > 0.05 {
				t.Fatalf("W*H[%d][%d] = %v, want %v (within eps)", i, j, sum, want)
			}
		}
	}
}

func TestComputeZFFlagsIllConditionedChannel(t *testing.T) {
	const bsAnt, ueNum = 4, 2
	// Two users with nearly identical channel vectors: HᴴH is near-singular.
	h := []complex64{
		1, 1.0001,
		1, 1.0001,
		1, 1.0001,
		1, 1.0001,
	}
	res := ComputeZF(h, bsAnt, ueNum, 0, 1e-2)
	if !res.Unstable {
		t.Fatal("expected near-duplicate user channels to be flagged unstable")
	}
}
