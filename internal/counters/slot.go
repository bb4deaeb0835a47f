package counters

// SlotState holds every counter for one frame slot: per-symbol RX
// arrival counts (Atomic) and per-symbol stage completion counts
// (Single); the master is the only writer of both. It is
// reset between frame lifetimes, never reallocated (spec.md §5).
type SlotState struct {
	RXAntennas []Atomic // len == symbols per frame
	FFTDone    []Single
	PilotFFT   Single // how many pilot symbols have reached FFTDone == BSAntNum
	CSIDone    Single // subcarrier blocks with CSI estimated, this frame
	ZFDone     Single // one ZF completion counter per frame (all pilot subcarrier blocks)
	DemulDone  []Single
	DecodeDone []Single

	ModDone  []Single // downlink: per symbol, users whose Modulate has completed
	IFFTDone []Single // downlink: per symbol, antennas whose IFFT has completed

	OwnerFrame uint32 // frame_id currently owning this slot; 0 means unowned since boot
	Active     bool   // true once the first RX packet for this frame has been accepted
}

// NewSlotState allocates per-symbol counter slices for one slot.
func NewSlotState(symbols int) *SlotState {
	return &SlotState{
		RXAntennas: make([]Atomic, symbols),
		FFTDone:    make([]Single, symbols),
		DemulDone:  make([]Single, symbols),
		DecodeDone: make([]Single, symbols),
		ModDone:    make([]Single, symbols),
		IFFTDone:   make([]Single, symbols),
	}
}

// ResetForFrame zeroes every counter in the slot and marks it owned by
// frameID. Called exactly once per frame transition (spec.md §3
// invariant), either on first-packet arrival for a fresh frame or on
// slot-reuse-hazard recovery (spec.md §7 item 5).
func (s *SlotState) ResetForFrame(frameID uint32) {
	for i := range s.RXAntennas {
		s.RXAntennas[i].Reset()
		s.FFTDone[i].Reset()
		s.DemulDone[i].Reset()
		s.DecodeDone[i].Reset()
		s.ModDone[i].Reset()
		s.IFFTDone[i].Reset()
	}
	s.PilotFFT.Reset()
	s.CSIDone.Reset()
	s.ZFDone.Reset()
	s.OwnerFrame = frameID
	s.Active = true
}

// AllZero reports whether every counter in the slot has returned to 0,
// the precondition for slot reuse (spec.md §3 invariant: "reuse requires
// the slot's completion counters to be zero").
func (s *SlotState) AllZero() bool {
	for i := range s.RXAntennas {
		if s.RXAntennas[i].Value() != 0 || s.FFTDone[i].Value() != 0 ||
			s.DemulDone[i].Value() != 0 || s.DecodeDone[i].Value() != 0 ||
			s.ModDone[i].Value() != 0 || s.IFFTDone[i].Value() != 0 {
			return false
		}
	}
	return s.ZFDone.Value() == 0 && s.PilotFFT.Value() == 0 && s.CSIDone.Value() == 0
}
