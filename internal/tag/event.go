package tag

// EventKind identifies the stage a completion or arrival event refers to.
type EventKind uint8

const (
	PacketRX EventKind = iota
	PacketTX
	FFT
	CSI
	ZF
	Demul
	DecodeEvent
	EncodeStage
	Modulate
	IFFT
)

// maxEventTags is the largest number of Tag words any event carries. A
// Decode completion, for example, carries a frame/symbol/user tag
// plus nothing else, so one word suffices for every kind in this system;
// the slot is sized for headroom without forcing a heap allocation.
const maxEventTags = 2

// Event is a copyable, trivially destructible record enqueued by a
// worker or RX shard. It carries only identifiers, never payload, and
// fits in one cache line.
type Event struct {
	Kind EventKind
	Tags [maxEventTags]Tag
}

// NewEvent builds a single-tag event, the common case.
func NewEvent(kind EventKind, t Tag) Event {
	return Event{Kind: kind, Tags: [maxEventTags]Tag{t}}
}
