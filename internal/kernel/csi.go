package kernel

// EstimateCSI divides the received pilot by the known pilot per
// subcarrier, producing the BSAntennas × UEUsers complex channel matrix
// for that subcarrier (spec.md §4.7). rxPilot is indexed
// [antenna][subcarrier]; knownPilot is indexed [user][subcarrier]; out is
// written as a flat [antenna*UEUsers+user] matrix for subcarrier sc.
func EstimateCSI(rxPilot [][]complex64, knownPilot [][]complex64, sc int, out []complex64) {
	bsAnt := len(rxPilot)
	ueNum := len(knownPilot)
	for a := 0; a < bsAnt; a++ {
		for u := 0; u < ueNum; u++ {
			p := knownPilot[u][sc]
			var h complex64
			if p != 0 {
				h = rxPilot[a][sc] / p
			}
			out[a*ueNum+u] = h
		}
	}
}
