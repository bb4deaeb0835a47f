package netio

import (
	"fmt"
	"log"

	"golang.org/x/sys/unix"

	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/runctl"
	"github.com/massivemimo/baseband/internal/tag"
)

// RXHandler is invoked once per fully-received packet, with the decoded
// header and a (still HeaderLen-prefixed) packet buffer owned by the
// shard — implementations copy into a ring slot before returning since
// the buffer is reused on the next socket iteration.
type RXHandler func(h Header, buf []byte)

// RXShard owns a disjoint socket range [lo, hi) opened as non-blocking
// UDP listeners, round-robins receives among them, and enqueues a
// PacketRX event per accepted packet using its own producer token — the
// discipline spec.md §4.4 describes.
type RXShard struct {
	id       int
	fds      []int
	pktLen   int
	buf      []byte
	msgQueue *lfq.Queue[tag.Event]
	token    lfq.ProducerToken
	running  *runctl.Token
	onPacket RXHandler
}

// NewRXShard opens UDP listeners on basePort+lo .. basePort+hi-1 and
// returns a shard ready to Run.
func NewRXShard(id int, basePort, lo, hi, pktLen int, msgQueue *lfq.Queue[tag.Event], running *runctl.Token, onPacket RXHandler) (*RXShard, error) {
	fds := make([]int, 0, hi-lo)
	for p := lo; p < hi; p++ {
		fd, err := openNonblockingUDP(basePort + p)
		if err != nil {
			for _, f := range fds {
				unix.Close(f)
			}
			return nil, fmt.Errorf("netio: rx shard %d: %w", id, err)
		}
		fds = append(fds, fd)
	}
	return &RXShard{
		id:       id,
		fds:      fds,
		pktLen:   pktLen,
		buf:      make([]byte, pktLen),
		msgQueue: msgQueue,
		token:    lfq.NewProducerToken(id),
		running:  running,
		onPacket: onPacket,
	}, nil
}

func openNonblockingUDP(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind port %d: %w", port, err)
	}
	return fd, nil
}

// Run is the shard's non-blocking poll loop: try a receive on the next
// socket in round-robin order, and if it returns zero bytes (EAGAIN),
// immediately try the next socket rather than blocking (spec.md §4.4
// suspension policy).
func (s *RXShard) Run() {
	if len(s.fds) == 0 {
		return
	}
	idx := 0
	for !s.running.Done() {
		fd := s.fds[idx]
		idx = (idx + 1) % len(s.fds)

		n, _, err := unix.Recvfrom(fd, s.buf, unix.MSG_DONTWAIT)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			log.Printf("netio: rx shard %d socket error: %v", s.id, err)
			s.running.Stop()
			return
		}
		if n < HeaderLen {
			continue // truncated packet, spec.md §7 transport error class; drop silently on the hot path
		}

		hdr, err := DecodeHeader(s.buf[:n])
		if err != nil {
			continue
		}

		s.onPacket(hdr, s.buf[:n])

		ev := tag.NewEvent(tag.PacketRX, tag.Encode(tag.TypeAntennas, hdr.FrameID, uint16(hdr.SymbolID), uint16(hdr.AntennaID)))
		s.msgQueue.TryEnqueue(ev) // dropped on overflow; master sizing per spec.md §4.5 keeps this rare
	}
}

// Close releases the shard's sockets.
func (s *RXShard) Close() {
	for _, fd := range s.fds {
		unix.Close(fd)
	}
}
