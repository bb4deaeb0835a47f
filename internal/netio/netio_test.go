package netio

import (
	"reflect"
	"testing"
	"time"

	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/runctl"
	"github.com/massivemimo/baseband/internal/tag"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := Header{FrameID: 123456, SymbolID: 7, CellID: 2, AntennaID: 31}
	buf := make([]byte, HeaderLen)
	EncodeHeader(buf, h)

	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != h {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderLen-1)); err == nil {
		t.Fatal("expected an error for a truncated header")
	}
}

func TestPayloadInt16RoundTrip(t *testing.T) {
	samples := []int16{1, -2, 3, -4, 32767, -32768}
	buf := make([]byte, HeaderLen+len(samples)*2)
	PutPayloadInt16(buf, samples)

	got := PayloadInt16(buf)
	if !reflect.DeepEqual(got, samples) {
		t.Fatalf("roundtrip mismatch: got %v, want %v", got, samples)
	}
}

func TestRXShardReceivesWhatTXShardSends(t *testing.T) {
	const basePort = 41500
	pktLen := PacketLen(4) // 4 "OFDM_FRAME_LEN" pairs, 8 int16 samples

	msgQueue := lfq.New[tag.Event](8)
	running := runctl.New()

	received := make(chan struct {
		h       Header
		payload []int16
	}, 1)
	onPacket := func(h Header, buf []byte) {
		received <- struct {
			h       Header
			payload []int16
		}{h, append([]int16(nil), PayloadInt16(buf)...)}
	}

	rx, err := NewRXShard(0, basePort, 0, 1, pktLen, msgQueue, running, onPacket)
	if err != nil {
		t.Fatalf("NewRXShard: %v", err)
	}
	defer rx.Close()
	go rx.Run()

	txComplete := lfq.New[tag.Event](4)
	tx, err := NewTXShard(0, "127.0.0.1", basePort, []uint16{0}, pktLen, txComplete)
	if err != nil {
		t.Fatalf("NewTXShard: %v", err)
	}
	defer tx.Close()

	payload := []int16{1, -2, 3, -4, 5, -6, 7, -8}
	hdr := Header{FrameID: 7, SymbolID: 2, CellID: 0, AntennaID: 0}
	if err := tx.Send(hdr, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if got.h != hdr {
			t.Fatalf("header mismatch: got %+v, want %+v", got.h, hdr)
		}
		if !reflect.DeepEqual(got.payload, payload) {
			t.Fatalf("payload mismatch: got %v, want %v", got.payload, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the RX shard to observe the packet")
	}
	running.Stop()

	ev, ok := msgQueue.TryDequeue()
	if !ok {
		t.Fatal("expected a PacketRX event on the message queue")
	}
	if ev.Kind != tag.PacketRX {
		t.Fatalf("expected PacketRX, got %v", ev.Kind)
	}
	f := tag.Decode(ev.Tags[0])
	if f.FrameID != hdr.FrameID || f.SymbolID != uint16(hdr.SymbolID) || f.Idx != uint16(hdr.AntennaID) {
		t.Fatalf("tag mismatch: got %+v", f)
	}

	completion, ok := txComplete.TryDequeue()
	if !ok {
		t.Fatal("expected a PacketTX completion event")
	}
	if completion.Kind != tag.PacketTX {
		t.Fatalf("expected PacketTX, got %v", completion.Kind)
	}
}

func TestTXShardSendUnknownEntityFails(t *testing.T) {
	tx, err := NewTXShard(0, "127.0.0.1", 41600, []uint16{0}, PacketLen(1), lfq.New[tag.Event](1))
	if err != nil {
		t.Fatalf("NewTXShard: %v", err)
	}
	defer tx.Close()

	if err := tx.Send(Header{AntennaID: 5}, []int16{0, 0}); err == nil {
		t.Fatal("expected an error sending to an entity the shard has no socket for")
	}
}
