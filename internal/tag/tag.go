// Package tag implements the 64-bit packed work-item identifier that
// flows through the scheduler, queues, and ring buffers without ever
// carrying payload itself.
package tag

// Type discriminates which 16-bit field of a Tag is populated.
type Type uint8

const (
	// TypeAntennas addresses a single base-station antenna.
	TypeAntennas Type = iota
	// TypeUsers addresses a single user-equipment stream.
	TypeUsers
	// TypeSubcarriers addresses a subcarrier (or subcarrier block).
	TypeSubcarriers
	// TypeFrmSym addresses a (frame, symbol) pair with no entity index.
	TypeFrmSym
)

// Tag is the 64-bit packed identifier: 32 bits frame_id, 16 bits symbol_id,
// 16 bits entity (antenna/user/subcarrier), with the top 2 bits of the
// entity field reserved for the Type discriminant.
type Tag uint64

const (
	frameShift  = 32
	symbolShift = 16
	entityMask  = 0x3FFF
	typeShift   = 14
	typeMask    = 0x3
)

// Encode packs a frame id, symbol id, entity index, and discriminant into
// a Tag. Branch-free: callers pre-mask idx to 14 bits.
func Encode(t Type, frameID uint32, symbolID uint16, idx uint16) Tag {
	entity := (idx & entityMask) | (uint16(t)&typeMask)<<typeShift
	return Tag(uint64(frameID)<<frameShift | uint64(symbolID)<<symbolShift | uint64(entity))
}

// Fields is the decoded form of a Tag.
type Fields struct {
	FrameID  uint32
	SymbolID uint16
	Idx      uint16
	Type     Type
}

// Decode unpacks a Tag into its constituent fields. Pure, branch-free.
func Decode(t Tag) Fields {
	entity := uint16(t)
	return Fields{
		FrameID:  uint32(t >> frameShift),
		SymbolID: uint16(t>>symbolShift) & 0xFFFF,
		Idx:      entity & entityMask,
		Type:     Type((entity >> typeShift) & typeMask),
	}
}

// FrameID extracts just the frame component, for hot paths that don't
// need the full decode.
func (t Tag) FrameID() uint32 { return uint32(t >> frameShift) }

// SymbolID extracts just the symbol component.
func (t Tag) SymbolID() uint16 { return uint16(t>>symbolShift) & 0xFFFF }

// Idx extracts the entity index (antenna/user/subcarrier), masking off
// the discriminant bits.
func (t Tag) Idx() uint16 { return uint16(t) & entityMask }

// StaleAfter reports whether frameID is stale relative to current under
// modular distance with ring depth F, per the wraparound invariant in
// spec.md §3. Distance is computed as unsigned wrapping subtraction, not
// reduced mod F a second time (spec.md §3's literal "mod F >= F" phrasing
// is never true as written; DESIGN.md records this as a resolved wording
// ambiguity, not a behavior to reproduce).
func StaleAfter(current, frameID uint32, f uint32) bool {
	return (current - frameID) >= f
}
