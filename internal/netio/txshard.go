package netio

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/tag"
)

// TXShard transmits prepared downlink packets. It owns one connected
// socket per destination antenna/user and is driven by worker shards
// dequeuing frm_sym_ant tags from the task queue assigned to it — the
// packet itself is built from the tag (header) and a TX ring slot
// (payload), per spec.md §4.4's TX path.
type TXShard struct {
	id      int
	fds     map[uint16]int // entity id -> connected socket fd
	pktLen  int
	txQueue *lfq.Queue[tag.Event]
	token   lfq.ProducerToken
}

// NewTXShard dials one UDP socket per destination (server addr:
// basePort+id), used by the sender (C9) and the decoder's downlink path.
func NewTXShard(id int, serverAddr string, basePortBase int, entityIDs []uint16, pktLen int, txQueue *lfq.Queue[tag.Event]) (*TXShard, error) {
	fds := make(map[uint16]int, len(entityIDs))
	for _, eid := range entityIDs {
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
		if err != nil {
			return nil, fmt.Errorf("netio: tx shard %d: socket: %w", id, err)
		}
		ip, err := parseIPv4(serverAddr)
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("netio: tx shard %d: %w", id, err)
		}
		dst := &unix.SockaddrInet4{Port: basePortBase + int(eid), Addr: ip}
		if err := unix.Connect(fd, dst); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("netio: tx shard %d: connect: %w", id, err)
		}
		fds[eid] = fd
	}
	return &TXShard{id: id, fds: fds, pktLen: pktLen, txQueue: txQueue, token: lfq.NewProducerToken(id)}, nil
}

// Send builds and transmits one packet for the given header/payload,
// enqueuing a PacketTX completion event on success.
func (s *TXShard) Send(h Header, payload []int16) error {
	fd, ok := s.fds[uint16(h.AntennaID)]
	if !ok {
		return fmt.Errorf("netio: tx shard %d has no socket for entity %d", s.id, h.AntennaID)
	}

	buf := make([]byte, s.pktLen)
	EncodeHeader(buf, h)
	PutPayloadInt16(buf, payload)

	if err := unix.Send(fd, buf, 0); err != nil {
		return fmt.Errorf("netio: tx shard %d send: %w", s.id, err)
	}

	ev := tag.NewEvent(tag.PacketTX, tag.Encode(tag.TypeAntennas, h.FrameID, uint16(h.SymbolID), uint16(h.AntennaID)))
	s.txQueue.TryEnqueue(ev)
	return nil
}

// Close releases every socket the shard owns.
func (s *TXShard) Close() {
	for _, fd := range s.fds {
		unix.Close(fd)
	}
}

func parseIPv4(addr string) ([4]byte, error) {
	var ip [4]byte
	var a, b, c, d int
	n, err := fmt.Sscanf(addr, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return ip, fmt.Errorf("invalid IPv4 address %q", addr)
	}
	ip[0], ip[1], ip[2], ip[3] = byte(a), byte(b), byte(c), byte(d)
	return ip, nil
}
