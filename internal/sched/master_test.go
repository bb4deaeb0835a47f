package sched

import (
	"testing"

	"github.com/massivemimo/baseband/internal/config"
	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/runctl"
	"github.com/massivemimo/baseband/internal/tag"
)

func testMaster(t *testing.T) *Master {
	t.Helper()
	cfg := &config.Config{
		BSAntNum:           2,
		UENum:              1,
		OFDMDataNum:        8,
		DemulBlockSize:     8,
		SymbolSchedule:     []config.SymbolKind{config.SymbolPilot, config.SymbolData},
		TaskBufferFrameNum: 2,
		FramesToTest:       1,
		NumWorkers:         2,
		LDPC:               config.LDPCConfig{Zc: 72},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	q := Queues{
		FFT:      lfq.NewShardSet[tag.Event](2, 16),
		CSI:      lfq.NewShardSet[tag.Event](2, 16),
		ZF:       lfq.NewShardSet[tag.Event](2, 16),
		Demul:    lfq.NewShardSet[tag.Event](2, 16),
		Decode:   lfq.NewShardSet[tag.Event](2, 16),
		Encode:   lfq.NewShardSet[tag.Event](2, 16),
		Modulate: lfq.NewShardSet[tag.Event](2, 16),
		IFFT:     lfq.NewShardSet[tag.Event](2, 16),
		TX:       lfq.NewShardSet[tag.Event](2, 16),
	}
	msgQueue := lfq.New[tag.Event](64)
	return New(cfg, msgQueue, q, runctl.New())
}

func drainShardSet(t *testing.T, s *lfq.ShardSet[tag.Event]) []tag.Event {
	t.Helper()
	var out []tag.Event
	for i := 0; i < s.Len(); i++ {
		buf := make([]tag.Event, 16)
		n := s.Shard(i).DequeueBulk(buf)
		out = append(out, buf[:n]...)
	}
	return out
}

// TestFullFrameProgressesThroughEveryStage drives one frame of a
// 2-antenna, 1-user, pilot+data schedule through PacketRX, FFT, CSI, ZF,
// Demul, and Decode completion events by hand (as the worker pool would
// produce them) and checks the master reaches frame completion exactly
// once, with exactly the expected task fan-out at each stage.
func TestFullFrameProgressesThroughEveryStage(t *testing.T) {
	m := testMaster(t)
	const frame = uint32(0)
	const pilotSym, dataSym = uint16(0), uint16(1)

	rx := func(sym uint16, ant uint16) tag.Event {
		return tag.NewEvent(tag.PacketRX, tag.Encode(tag.TypeAntennas, frame, sym, ant))
	}
	m.dispatch(rx(pilotSym, 0))
	m.dispatch(rx(pilotSym, 1))

	fftTasks := drainShardSet(t, m.fftQ)
	if len(fftTasks) != 2 {
		t.Fatalf("expected 2 FFT tasks dispatched for pilot symbol, got %d", len(fftTasks))
	}

	fft := func(sym uint16, ant uint16) tag.Event {
		return tag.NewEvent(tag.FFT, tag.Encode(tag.TypeAntennas, frame, sym, ant))
	}
	m.dispatch(fft(pilotSym, 0))
	m.dispatch(fft(pilotSym, 1))

	csiTasks := drainShardSet(t, m.csiQ)
	if len(csiTasks) != 1 {
		t.Fatalf("expected 1 CSI task (1 subcarrier block), got %d", len(csiTasks))
	}

	m.dispatch(tag.NewEvent(tag.CSI, tag.Encode(tag.TypeSubcarriers, frame, pilotSym, 0)))

	zfTasks := drainShardSet(t, m.zfQ)
	if len(zfTasks) != 1 {
		t.Fatalf("expected 1 ZF task, got %d", len(zfTasks))
	}

	m.dispatch(tag.NewEvent(tag.ZF, tag.Encode(tag.TypeSubcarriers, frame, pilotSym, 0)))

	// ZF is ready but the data symbol's own FFT hasn't happened yet, so no
	// Demul task should appear until FFT for symbol 1 completes.
	if tasks := drainShardSet(t, m.demulQ); len(tasks) != 0 {
		t.Fatalf("expected no premature Demul dispatch, got %d", len(tasks))
	}

	m.dispatch(rx(dataSym, 0))
	m.dispatch(rx(dataSym, 1))
	drainShardSet(t, m.fftQ) // the data symbol's FFT tasks, not under test here
	m.dispatch(fft(dataSym, 0))
	m.dispatch(fft(dataSym, 1))

	demulTasks := drainShardSet(t, m.demulQ)
	if len(demulTasks) != 1 {
		t.Fatalf("expected 1 Demul task once both FFT and ZF are ready, got %d", len(demulTasks))
	}

	m.dispatch(tag.NewEvent(tag.Demul, tag.Encode(tag.TypeSubcarriers, frame, dataSym, 0)))

	decodeTasks := drainShardSet(t, m.decodeQ)
	if len(decodeTasks) != 1 {
		t.Fatalf("expected 1 Decode task (1 user), got %d", len(decodeTasks))
	}

	if m.FramesCompleted() != 0 {
		t.Fatal("frame must not be reported complete before decode finishes")
	}
	m.dispatch(tag.NewEvent(tag.DecodeEvent, tag.Encode(tag.TypeUsers, frame, dataSym, 0)))

	if m.FramesCompleted() != 1 {
		t.Fatalf("expected frame to complete exactly once, got count %d", m.FramesCompleted())
	}
}

// TestSlotReuseHazardIsCountedAndRecovered mirrors the drop scenario: a
// new frame's packets start arriving on a slot whose previous frame
// never finished (some antennas of a symbol never arrived), and the
// master must force a reset rather than mixing counters across frames.
func TestSlotReuseHazardIsCountedAndRecovered(t *testing.T) {
	m := testMaster(t)

	rx := func(frame uint32, sym, ant uint16) tag.Event {
		return tag.NewEvent(tag.PacketRX, tag.Encode(tag.TypeAntennas, frame, sym, ant))
	}

	// Frame 0 starts but only 1 of 2 antennas ever arrives for symbol 0.
	m.dispatch(rx(0, 0, 0))
	drainShardSet(t, m.fftQ)

	// Frame 2 reuses slot 0 (TaskBufferFrameNum=2 -> frame%2 == 0) while
	// frame 0 is still incomplete.
	m.dispatch(rx(2, 0, 0))

	if m.DroppedSlots() != 1 {
		t.Fatalf("expected exactly 1 slot-reuse hazard recorded, got %d", m.DroppedSlots())
	}
	if m.slots[0].OwnerFrame != 2 {
		t.Fatalf("expected slot to now be owned by frame 2, got %d", m.slots[0].OwnerFrame)
	}
}

// TestDownlinkDispatchedSymmetricallyOnFrameStart drives one frame's
// downlink Encode/Modulate/IFFT completion events by hand and checks the
// master fans out the next stage with the same one-event-per-entity
// discipline as the uplink, triggered the moment the frame's first
// uplink packet claims the slot.
func TestDownlinkDispatchedSymmetricallyOnFrameStart(t *testing.T) {
	m := testMaster(t)
	const frame = uint32(0)
	const pilotSym, dataSym = uint16(0), uint16(1)

	// A fresh frame's first uplink arrival also kicks off the downlink.
	m.dispatch(tag.NewEvent(tag.PacketRX, tag.Encode(tag.TypeAntennas, frame, pilotSym, 0)))

	encodeTasks := drainShardSet(t, m.encodeQ)
	if len(encodeTasks) != 1 {
		t.Fatalf("expected 1 Encode task (1 user, 1 data symbol), got %d", len(encodeTasks))
	}

	m.dispatch(tag.NewEvent(tag.EncodeStage, tag.Encode(tag.TypeUsers, frame, dataSym, 0)))

	modTasks := drainShardSet(t, m.modQ)
	if len(modTasks) != 1 {
		t.Fatalf("expected 1 Modulate task forwarded directly from Encode, got %d", len(modTasks))
	}

	// Modulate for the only user isn't enough to release IFFT until every
	// user of that symbol has modulated; here UENum is 1 so it fires
	// immediately.
	m.dispatch(tag.NewEvent(tag.Modulate, tag.Encode(tag.TypeUsers, frame, dataSym, 0)))

	ifftTasks := drainShardSet(t, m.ifftQ)
	if len(ifftTasks) != 2 {
		t.Fatalf("expected 1 IFFT task per antenna (2 antennas), got %d", len(ifftTasks))
	}

	m.dispatch(tag.NewEvent(tag.IFFT, tag.Encode(tag.TypeAntennas, frame, dataSym, 0)))
	if tasks := drainShardSet(t, m.txQ); len(tasks) != 0 {
		t.Fatalf("expected no TX dispatch until every antenna's IFFT completes, got %d", len(tasks))
	}

	m.dispatch(tag.NewEvent(tag.IFFT, tag.Encode(tag.TypeAntennas, frame, dataSym, 1)))
	txTasks := drainShardSet(t, m.txQ)
	if len(txTasks) != 2 {
		t.Fatalf("expected 1 TX task per antenna once all IFFTs complete, got %d", len(txTasks))
	}
}
