// Package netio implements the RX/TX shards that translate wire packets
// into ring-buffer slots and tags (spec.md C5). Non-blocking socket
// polling is done directly through golang.org/x/sys/unix, the same idiom
// the teacher reaches for in pkg/dma, pkg/shm_ring, and
// stream_loop_linux.go rather than wrapping every device/socket access
// behind net.Conn.
package netio

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the fixed wire header size: frame_id, symbol_id, cell_id,
// antenna_id, each a little-endian uint32 (spec.md §6).
const HeaderLen = 16

// Header is the decoded wire packet header.
type Header struct {
	FrameID   uint32
	SymbolID  uint32
	CellID    uint32
	AntennaID uint32
}

// PacketLen returns the fixed total wire length for a payload carrying
// 2*ofdmFrameLen int16 samples (I,Q interleaved).
func PacketLen(ofdmFrameLen int) int {
	return HeaderLen + 2*ofdmFrameLen*2
}

// EncodeHeader writes h into the first HeaderLen bytes of buf.
func EncodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.FrameID)
	binary.LittleEndian.PutUint32(buf[4:8], h.SymbolID)
	binary.LittleEndian.PutUint32(buf[8:12], h.CellID)
	binary.LittleEndian.PutUint32(buf[12:16], h.AntennaID)
}

// DecodeHeader reads a Header from the first HeaderLen bytes of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("netio: packet too short for header: %d bytes", len(buf))
	}
	return Header{
		FrameID:   binary.LittleEndian.Uint32(buf[0:4]),
		SymbolID:  binary.LittleEndian.Uint32(buf[4:8]),
		CellID:    binary.LittleEndian.Uint32(buf[8:12]),
		AntennaID: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// PayloadInt16 views the payload region of buf as little-endian int16
// I/Q samples, interleaved.
func PayloadInt16(buf []byte) []int16 {
	n := (len(buf) - HeaderLen) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		off := HeaderLen + i*2
		out[i] = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
	}
	return out
}

// PutPayloadInt16 writes samples as little-endian int16 into buf's
// payload region, which must already be sized for len(samples)*2 bytes.
func PutPayloadInt16(buf []byte, samples []int16) {
	for i, s := range samples {
		off := HeaderLen + i*2
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(s))
	}
}
