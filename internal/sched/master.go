// Package sched implements the master scheduler (spec.md C6): the single
// goroutine that owns every slot's completion counters, bulk-dequeues
// completion events from shards and workers, and dispatches the next
// stage's tasks onto per-worker shard queues. It never touches payload —
// only tags and counters — so it never blocks on anything but queue
// backpressure.
package sched

import (
	"log"

	"github.com/massivemimo/baseband/internal/config"
	"github.com/massivemimo/baseband/internal/counters"
	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/runctl"
	"github.com/massivemimo/baseband/internal/tag"
)

// bulkSize is how many events the master tries to drain from the message
// queue per loop iteration (spec.md §4.5 "bulk dequeue").
const bulkSize = 64

// extra tracks per-slot bookkeeping that is not itself a stage counter
// but gates when a stage's counters are even eligible to be checked —
// kept out of counters.SlotState because it is boolean scheduling state,
// not an arrival/completion tally.
type extra struct {
	zfReady     bool   // this frame's precoder is usable by Demul
	fftReady    []bool // per symbol: FFT output ready for this symbol
	demulReady  []bool // per symbol: Demul output ready, Decode may run
	symDecoded  int    // count of data symbols whose DecodeDone has reached target
	pendingDrop bool
}

func newExtra(symbols int) *extra {
	return &extra{
		fftReady:   make([]bool, symbols),
		demulReady: make([]bool, symbols),
	}
}

func (e *extra) reset() {
	e.zfReady = false
	for i := range e.fftReady {
		e.fftReady[i] = false
		e.demulReady[i] = false
	}
	e.symDecoded = 0
}

// Master is the scheduler's mutable state: one SlotState + extra per
// frame slot, the incoming message queue, and one ShardSet per pipeline
// stage addressed by worker index.
type Master struct {
	cfg *config.Config

	bsAnt      int32
	ueNum      int32
	scBlocks   int32
	numWorkers int
	pilotSyms  []int
	dataSyms   []int

	slots []*counters.SlotState
	ex    []*extra

	msgQueue *lfq.Queue[tag.Event]
	fftQ     *lfq.ShardSet[tag.Event]
	csiQ     *lfq.ShardSet[tag.Event]
	zfQ      *lfq.ShardSet[tag.Event]
	demulQ   *lfq.ShardSet[tag.Event]
	decodeQ  *lfq.ShardSet[tag.Event]
	encodeQ  *lfq.ShardSet[tag.Event]
	modQ     *lfq.ShardSet[tag.Event]
	ifftQ    *lfq.ShardSet[tag.Event]
	txQ      *lfq.ShardSet[tag.Event]

	running *runctl.Token

	framesCompleted int
	framesToTest    int
	droppedSlots    int

	// OnFrameComplete, if set, is called on the master's own goroutine
	// every time a frame finishes decode for all data symbols — used by
	// internal/stats and internal/monitor to publish results without the
	// master importing either.
	OnFrameComplete func(frameID uint32)
}

// Queues bundles every per-stage ShardSet the master dispatches onto, so
// New's signature does not grow every time a stage is added.
type Queues struct {
	FFT      *lfq.ShardSet[tag.Event]
	CSI      *lfq.ShardSet[tag.Event]
	ZF       *lfq.ShardSet[tag.Event]
	Demul    *lfq.ShardSet[tag.Event]
	Decode   *lfq.ShardSet[tag.Event]
	Encode   *lfq.ShardSet[tag.Event] // downlink: per (symbol, user) LDPC encode tasks
	Modulate *lfq.ShardSet[tag.Event] // downlink: per (symbol, user) QAM modulate tasks
	IFFT     *lfq.ShardSet[tag.Event] // downlink: per (symbol, antenna) IFFT tasks
	TX       *lfq.ShardSet[tag.Event] // downlink: per (symbol, antenna) transmit tasks
}

// New builds a master for cfg, ready to Run once msgQueue starts filling.
func New(cfg *config.Config, msgQueue *lfq.Queue[tag.Event], q Queues, running *runctl.Token) *Master {
	symbols := len(cfg.SymbolSchedule)
	slots := make([]*counters.SlotState, cfg.TaskBufferFrameNum)
	ex := make([]*extra, cfg.TaskBufferFrameNum)
	for i := range slots {
		slots[i] = counters.NewSlotState(symbols)
		ex[i] = newExtra(symbols)
	}
	return &Master{
		cfg:          cfg,
		bsAnt:        int32(cfg.BSAntNum),
		ueNum:        int32(cfg.UENum),
		scBlocks:     int32(cfg.SubcarrierBlocks()),
		numWorkers:   cfg.NumWorkers,
		pilotSyms:    cfg.PilotSymbols(),
		dataSyms:     cfg.DataSymbols(),
		slots:        slots,
		ex:           ex,
		msgQueue:     msgQueue,
		fftQ:         q.FFT,
		csiQ:         q.CSI,
		zfQ:          q.ZF,
		demulQ:       q.Demul,
		decodeQ:      q.Decode,
		encodeQ:      q.Encode,
		modQ:         q.Modulate,
		ifftQ:        q.IFFT,
		txQ:          q.TX,
		running:      running,
		framesToTest: cfg.FramesToTest,
	}
}

// Run is the master's loop: bulk-dequeue, dispatch, repeat, until the
// configured frame count is reached or the run token is stopped.
func (m *Master) Run() {
	buf := make([]tag.Event, bulkSize)
	for !m.running.Done() {
		n := m.msgQueue.DequeueBulk(buf)
		if n == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			m.dispatch(buf[i])
		}
		if m.framesToTest > 0 && m.framesCompleted >= m.framesToTest {
			m.running.Stop()
			return
		}
	}
}

func (m *Master) dispatch(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slotIdx := int(f.FrameID) % len(m.slots)
	slot := m.slots[slotIdx]
	ex := m.ex[slotIdx]

	switch ev.Kind {
	case tag.PacketRX:
		m.onPacketRX(slot, ex, slotIdx, f)
	case tag.FFT:
		m.onFFTDone(slot, ex, f)
	case tag.CSI:
		m.onCSIDone(slot, f)
	case tag.ZF:
		m.onZFDone(slot, ex, f)
	case tag.Demul:
		m.onDemulDone(slot, ex, f)
	case tag.DecodeEvent:
		m.onDecodeDone(slot, ex, f, slotIdx)
	case tag.EncodeStage:
		m.onEncodeDone(f)
	case tag.Modulate:
		m.onModulateDone(slot, f)
	case tag.IFFT:
		m.onIFFTDone(slot, f)
	case tag.PacketTX:
		// Reported by netio.TXShard.Send once a downlink packet actually
		// goes out (internal/worker.doTX). Nothing in the uplink/downlink
		// state machine gates on it, and the master takes no action on it.
	default:
		log.Printf("sched: dispatch: unexpected event kind %d", ev.Kind)
	}
}

// onPacketRX handles a single antenna's arrival for (frame, symbol). A
// frame transition (new frame_id claiming a slot still owned by an
// unfinished older frame) is the slot-reuse hazard spec.md §7 item 5
// calls out; it is counted and the slot is force-reset rather than left
// to silently corrupt a frame in flight.
func (m *Master) onPacketRX(slot *counters.SlotState, ex *extra, slotIdx int, f tag.Fields) {
	if !slot.Active {
		slot.ResetForFrame(f.FrameID)
		ex.reset()
		m.dispatchDownlink(f.FrameID)
	} else if slot.OwnerFrame != f.FrameID {
		if !slot.AllZero() {
			m.droppedSlots++
			log.Printf("sched: slot %d reuse hazard: frame %d arrived while frame %d still in flight, forcing reset (dropped=%d)",
				slotIdx, f.FrameID, slot.OwnerFrame, m.droppedSlots)
		}
		slot.ResetForFrame(f.FrameID)
		ex.reset()
		m.dispatchDownlink(f.FrameID)
	}

	n := slot.RXAntennas[f.SymbolID].Inc()
	if n != m.bsAnt {
		return
	}
	slot.RXAntennas[f.SymbolID].ResetIfTarget(m.bsAnt)

	for a := int32(0); a < m.bsAnt; a++ {
		t := tag.Encode(tag.TypeAntennas, f.FrameID, f.SymbolID, uint16(a))
		m.fftQ.TryEnqueueTo(int(a)%m.numWorkers, tag.NewEvent(tag.FFT, t), m.onBackpressure("fft"))
	}
}

func (m *Master) isPilot(symbol uint16) bool {
	for _, p := range m.pilotSyms {
		if uint16(p) == symbol {
			return true
		}
	}
	return false
}

// onFFTDone fires once per antenna's FFT completion. Pilot symbols feed
// CSI estimation once every pilot symbol's FFT has reached bsAnt; data
// symbols become eligible for Demul once both their own FFT is done and
// the frame's precoder (ZF) is ready.
func (m *Master) onFFTDone(slot *counters.SlotState, ex *extra, f tag.Fields) {
	n := slot.FFTDone[f.SymbolID].Inc()
	if n != m.bsAnt {
		return
	}
	slot.FFTDone[f.SymbolID].ResetIfTarget(m.bsAnt)

	if m.isPilot(f.SymbolID) {
		pn := slot.PilotFFT.Inc()
		if pn != int32(len(m.pilotSyms)) {
			return
		}
		slot.PilotFFT.ResetIfTarget(int32(len(m.pilotSyms)))
		for b := int32(0); b < m.scBlocks; b++ {
			t := tag.Encode(tag.TypeSubcarriers, f.FrameID, f.SymbolID, uint16(b))
			m.csiQ.TryEnqueueTo(int(b)%m.numWorkers, tag.NewEvent(tag.CSI, t), m.onBackpressure("csi"))
		}
		return
	}

	ex.fftReady[f.SymbolID] = true
	if ex.zfReady {
		m.dispatchDemul(f.FrameID, f.SymbolID)
	}
}

// onCSIDone runs once per subcarrier block; when every block has an
// estimate, the ZF inversion tasks are dispatched over the same block
// granularity (spec.md §4.2's "per subcarrier block" ZF work unit).
func (m *Master) onCSIDone(slot *counters.SlotState, f tag.Fields) {
	n := slot.CSIDone.Inc()
	if n != m.scBlocks {
		return
	}
	slot.CSIDone.ResetIfTarget(m.scBlocks)
	for b := int32(0); b < m.scBlocks; b++ {
		t := tag.Encode(tag.TypeSubcarriers, f.FrameID, f.SymbolID, uint16(b))
		m.zfQ.TryEnqueueTo(int(b)%m.numWorkers, tag.NewEvent(tag.ZF, t), m.onBackpressure("zf"))
	}
}

// onZFDone fires once per subcarrier block's precoder inversion; once
// every block is done the frame's precoder is usable, and every data
// symbol whose FFT already finished is immediately eligible for Demul.
func (m *Master) onZFDone(slot *counters.SlotState, ex *extra, f tag.Fields) {
	n := slot.ZFDone.Inc()
	if n != m.scBlocks {
		return
	}
	slot.ZFDone.ResetIfTarget(m.scBlocks)
	ex.zfReady = true
	for _, sym := range m.dataSyms {
		if ex.fftReady[sym] {
			m.dispatchDemul(f.FrameID, uint16(sym))
		}
	}
}

func (m *Master) dispatchDemul(frameID uint32, symbol uint16) {
	for b := int32(0); b < m.scBlocks; b++ {
		t := tag.Encode(tag.TypeSubcarriers, frameID, symbol, uint16(b))
		m.demulQ.TryEnqueueTo(int(b)%m.numWorkers, tag.NewEvent(tag.Demul, t), m.onBackpressure("demul"))
	}
}

// onDemulDone fires once per subcarrier block of one data symbol; once
// every block of that symbol is equalized and demodulated, one LDPC
// decode task is dispatched per user for that symbol.
func (m *Master) onDemulDone(slot *counters.SlotState, ex *extra, f tag.Fields) {
	n := slot.DemulDone[f.SymbolID].Inc()
	if n != m.scBlocks {
		return
	}
	slot.DemulDone[f.SymbolID].ResetIfTarget(m.scBlocks)
	ex.demulReady[f.SymbolID] = true
	for u := int32(0); u < m.ueNum; u++ {
		t := tag.Encode(tag.TypeUsers, f.FrameID, f.SymbolID, uint16(u))
		m.decodeQ.TryEnqueueTo(int(u)%m.numWorkers, tag.NewEvent(tag.DecodeEvent, t), m.onBackpressure("decode"))
	}
}

// onDecodeDone fires once per user's LDPC decode of one data symbol.
// Once every user of that symbol is decoded, the symbol is complete;
// once every data symbol of the frame is complete, the frame is
// delivered and the slot is released for reuse.
func (m *Master) onDecodeDone(slot *counters.SlotState, ex *extra, f tag.Fields, slotIdx int) {
	n := slot.DecodeDone[f.SymbolID].Inc()
	if n != m.ueNum {
		return
	}
	slot.DecodeDone[f.SymbolID].ResetIfTarget(m.ueNum)
	ex.symDecoded++
	if ex.symDecoded != len(m.dataSyms) {
		return
	}

	m.framesCompleted++
	if m.OnFrameComplete != nil {
		m.OnFrameComplete(f.FrameID)
	}
	slot.Active = false
	ex.reset()
	_ = slotIdx
}

// dispatchDownlink fires once per frame, at the same moment a fresh
// frame's first uplink packet claims the slot (spec.md §1: the downlink
// is synthesized symmetrically rather than waiting on an uplink
// completion). It dispatches one Encode task per (data symbol, user),
// the downlink mirror of onPacketRX's per-antenna FFT fan-out.
func (m *Master) dispatchDownlink(frameID uint32) {
	for _, sym := range m.dataSyms {
		for u := int32(0); u < m.ueNum; u++ {
			t := tag.Encode(tag.TypeUsers, frameID, uint16(sym), uint16(u))
			m.encodeQ.TryEnqueueTo(int(u)%m.numWorkers, tag.NewEvent(tag.EncodeStage, t), m.onBackpressure("encode"))
		}
	}
}

// onEncodeDone fires once per user's LDPC encode of one downlink data
// symbol. Modulate depends only on that same user's own codeword, so it
// is forwarded directly with no arrival counting.
func (m *Master) onEncodeDone(f tag.Fields) {
	t := tag.Encode(tag.TypeUsers, f.FrameID, f.SymbolID, f.Idx)
	m.modQ.TryEnqueueTo(int(f.Idx)%m.numWorkers, tag.NewEvent(tag.Modulate, t), m.onBackpressure("modulate"))
}

// onModulateDone fires once per user's QAM modulation of one downlink
// data symbol. Once every user's modulated symbol for that data symbol
// is ready, IFFT can combine them (through the reused uplink ZF
// precoder, spec.md §4.7's reciprocity assumption) into one task per
// antenna.
func (m *Master) onModulateDone(slot *counters.SlotState, f tag.Fields) {
	n := slot.ModDone[f.SymbolID].Inc()
	if n != m.ueNum {
		return
	}
	slot.ModDone[f.SymbolID].ResetIfTarget(m.ueNum)
	for a := int32(0); a < m.bsAnt; a++ {
		t := tag.Encode(tag.TypeAntennas, f.FrameID, f.SymbolID, uint16(a))
		m.ifftQ.TryEnqueueTo(int(a)%m.numWorkers, tag.NewEvent(tag.IFFT, t), m.onBackpressure("ifft"))
	}
}

// onIFFTDone fires once per antenna's downlink IFFT for one data symbol.
// Once every antenna's time-domain symbol is ready, one TX task per
// antenna goes out to worker a mod numWorkers, which sends it through the
// TX shard covering that antenna.
func (m *Master) onIFFTDone(slot *counters.SlotState, f tag.Fields) {
	n := slot.IFFTDone[f.SymbolID].Inc()
	if n != m.bsAnt {
		return
	}
	slot.IFFTDone[f.SymbolID].ResetIfTarget(m.bsAnt)
	for a := int32(0); a < m.bsAnt; a++ {
		t := tag.Encode(tag.TypeAntennas, f.FrameID, f.SymbolID, uint16(a))
		m.txQ.TryEnqueueTo(int(a)%m.numWorkers, tag.NewEvent(tag.PacketTX, t), m.onBackpressure("tx"))
	}
}

// onBackpressure returns a warning callback for ShardSet.TryEnqueueTo,
// logged once per blocking fallback per spec.md §4.5's backpressure
// policy (warn, then block rather than drop a scheduled task).
func (m *Master) onBackpressure(stage string) func() {
	return func() {
		log.Printf("sched: %s task queue full, blocking producer", stage)
	}
}

// FramesCompleted reports how many frames have fully finished decode.
func (m *Master) FramesCompleted() int { return m.framesCompleted }

// DroppedSlots reports how many slot-reuse hazards were observed.
func (m *Master) DroppedSlots() int { return m.droppedSlots }
