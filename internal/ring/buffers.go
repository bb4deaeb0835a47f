package ring

// Dims bundles the dimensions needed to size every stage ring from one
// place, mirroring spec.md §6's configuration surface.
type Dims struct {
	FrameSlots  int // F = TASK_BUFFER_FRAME_NUM
	SymbolsPerFrame int // S
	BSAntennas  int // antennas per symbol
	UEUsers     int // users per symbol
	Subcarriers int // OFDM_DATA_NUM
	CBPerUser   int // codeblocks per user per frame (decode granularity)
	CBLen       int // LDPC information bits per codeblock
	CBCodewLen  int // LDPC coded bits per codeblock
}

// Buffers is the full set of frame-slot-addressed rings the pipeline
// reads and writes, one per spec.md §2's listed ring kind. Every ring is
// allocated once at construction (NewBuffers) and never freed.
type Buffers struct {
	RXIQ      *Ring[complex64] // [F][S][BSAntennas*Subcarriers] time-domain then freq-domain in place
	TXIQ      *Ring[complex64] // [F][S][BSAntennas*Subcarriers] downlink symmetric buffer, IFFT in place
	CSI       *Ring[complex64] // [F][1][Subcarriers*BSAntennas*UEUsers] one estimate per frame
	Precoder  *Ring[complex64] // [F][1][Subcarriers*UEUsers*BSAntennas]
	Equalized *Ring[complex64] // [F][S][Subcarriers*UEUsers]
	Demod     *Ring[float32]   // [F][S][Subcarriers*UEUsers*8] LLRs, 8 slots per (subcarrier, user) for any modOrderBits <= 8
	Decoded   *Ring[byte]      // [F][S][UEUsers*CBLen/8] packed decoded bits
	EncodedBD *Ring[byte]      // [F][S][UEUsers*CBCodewLen/8] packed downlink codewords, the Encode->Modulate handoff
	ModFreq   *Ring[complex64] // [F][S][UEUsers*Subcarriers] per-user downlink frequency-domain symbols, the Modulate->IFFT handoff
}

// NewBuffers allocates every ring per Dims.
func NewBuffers(d Dims) *Buffers {
	return &Buffers{
		RXIQ:      New[complex64](d.FrameSlots, d.SymbolsPerFrame, d.BSAntennas*d.Subcarriers),
		TXIQ:      New[complex64](d.FrameSlots, d.SymbolsPerFrame, d.BSAntennas*d.Subcarriers),
		CSI:       New[complex64](d.FrameSlots, 1, d.Subcarriers*d.BSAntennas*d.UEUsers),
		Precoder:  New[complex64](d.FrameSlots, 1, d.Subcarriers*d.UEUsers*d.BSAntennas),
		Equalized: New[complex64](d.FrameSlots, d.SymbolsPerFrame, d.Subcarriers*d.UEUsers),
		Demod:     New[float32](d.FrameSlots, d.SymbolsPerFrame, d.Subcarriers*d.UEUsers*8),
		Decoded:   New[byte](d.FrameSlots, d.SymbolsPerFrame, d.UEUsers*((d.CBLen+7)/8)),
		EncodedBD: New[byte](d.FrameSlots, d.SymbolsPerFrame, d.UEUsers*((d.CBCodewLen+7)/8)),
		ModFreq:   New[complex64](d.FrameSlots, d.SymbolsPerFrame, d.UEUsers*d.Subcarriers),
	}
}
