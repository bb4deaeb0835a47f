// Package worker implements the pinned worker shards (spec.md C7) that
// do all the actual signal-processing work: each worker owns one shard
// of every per-stage task queue the master (internal/sched) dispatches
// onto, drains whichever has work, invokes the matching internal/kernel
// adapter against the shared ring buffers, and reports completion back
// to the master's message queue. Workers never allocate on the
// steady-state hot path beyond what the underlying kernel call needs.
package worker

import (
	"log"
	"runtime"

	"github.com/massivemimo/baseband/internal/affinity"
	"github.com/massivemimo/baseband/internal/kernel"
	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/netio"
	"github.com/massivemimo/baseband/internal/ring"
	"github.com/massivemimo/baseband/internal/runctl"
	"github.com/massivemimo/baseband/internal/tag"
)

// Dims bundles the dimensions a worker needs to address ring buffers and
// size kernel calls; mirrors the relevant subset of config.Config.
type Dims struct {
	FrameSlots      int
	SymbolsPerFrame int
	BSAntennas      int
	UEUsers         int
	Subcarriers     int
	DemulBlockSize  int
	ModOrderBits    int
	CBLen           int
	CBCodewLen      int
	DecoderIters    int
	ZFReg           float64
	ZFCondThresh    float64
	NoiseVar        float32
	SoftDemod       bool
}

// demodStride is the per (subcarrier, user) LLR slot width reserved in
// the Demod ring, sized for the largest modulation order this system
// supports (QAM256, 8 bits/symbol); unused trailing slots when
// ModOrderBits < 8 are simply never read.
const demodStride = 8

// Queues is the set of per-stage ShardSets a worker drains, identical to
// sched.Queues (kept as its own type so this package does not import
// sched, which would create an import cycle back through the binaries
// that wire both).
type Queues struct {
	FFT      *lfq.ShardSet[tag.Event]
	CSI      *lfq.ShardSet[tag.Event]
	ZF       *lfq.ShardSet[tag.Event]
	Demul    *lfq.ShardSet[tag.Event]
	Decode   *lfq.ShardSet[tag.Event]
	Encode   *lfq.ShardSet[tag.Event]
	Modulate *lfq.ShardSet[tag.Event]
	IFFT     *lfq.ShardSet[tag.Event]
	TX       *lfq.ShardSet[tag.Event]
}

// Worker is one pinned shard. It holds no mutable state beyond what the
// ring buffers and LDPC code already provide, so Worker itself needs no
// synchronization: every ring region it touches is addressed by a tag
// whose uniqueness the master's dispatch logic already guarantees
// (single-writer-per-slot-per-stage, spec.md §5).
type Worker struct {
	id    int
	core  int
	dims  Dims
	bufs  *ring.Buffers
	code  *kernel.Code
	pilot [][]complex64 // per user, length Subcarriers

	q        Queues
	complete *lfq.Queue[tag.Event]
	running  *runctl.Token

	tx            []*netio.TXShard // downlink transmit shards, indexed by antenna range
	txAntPerShard int
}

// New builds a worker. code is shared read-only across every worker
// (Code.Encode/Decode/Check never mutate the struct), and pilot is the
// shared known-pilot table indexed [user][subcarrier]. tx is the set of
// downlink TX shards the decoder opened (spec.md C5/C9 parity: TXShard
// is shared the same way RXShard's antenna ranges are in cmd/decoder),
// addressed by antenna via txAntPerShard the same way cmd/decoder splits
// RX antenna ranges across RX shards.
func New(id, core int, dims Dims, bufs *ring.Buffers, code *kernel.Code, q Queues, complete *lfq.Queue[tag.Event], running *runctl.Token, tx []*netio.TXShard, txAntPerShard int) *Worker {
	pilot := make([][]complex64, dims.UEUsers)
	for u := range pilot {
		pilot[u] = kernel.GeneratePilot(u, dims.Subcarriers)
	}
	return &Worker{id: id, core: core, dims: dims, bufs: bufs, code: code, pilot: pilot, q: q, complete: complete, running: running, tx: tx, txAntPerShard: txAntPerShard}
}

// Run pins the calling goroutine's OS thread to w.core and services
// every stage's shard in fixed priority order (FFT, CSI, ZF, Demul,
// Decode, Encode, Modulate, IFFT, TX), going back to FFT after each task,
// until the run token stops it. It must be launched with `go w.Run()`.
func (w *Worker) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	affinity.Pin(w.core)

	for !w.running.Done() {
		if ev, ok := w.q.FFT.Shard(w.id).TryDequeue(); ok {
			w.doFFT(ev)
			continue
		}
		if ev, ok := w.q.CSI.Shard(w.id).TryDequeue(); ok {
			w.doCSI(ev)
			continue
		}
		if ev, ok := w.q.ZF.Shard(w.id).TryDequeue(); ok {
			w.doZF(ev)
			continue
		}
		if ev, ok := w.q.Demul.Shard(w.id).TryDequeue(); ok {
			w.doDemul(ev)
			continue
		}
		if ev, ok := w.q.Decode.Shard(w.id).TryDequeue(); ok {
			w.doDecode(ev)
			continue
		}
		if ev, ok := w.q.Encode.Shard(w.id).TryDequeue(); ok {
			w.doEncode(ev)
			continue
		}
		if ev, ok := w.q.Modulate.Shard(w.id).TryDequeue(); ok {
			w.doModulate(ev)
			continue
		}
		if ev, ok := w.q.IFFT.Shard(w.id).TryDequeue(); ok {
			w.doIFFT(ev)
			continue
		}
		if ev, ok := w.q.TX.Shard(w.id).TryDequeue(); ok {
			w.doTX(ev)
			continue
		}
		runtime.Gosched()
	}
}

func (w *Worker) report(kind tag.EventKind, t tag.Tag) {
	w.complete.Enqueue(tag.NewEvent(kind, t))
}

// doFFT converts one antenna's received time-domain symbol in place to
// the frequency domain (spec.md §4.7's FFT kernel), operating directly
// on the antenna's window of the RXIQ ring.
func (w *Worker) doFFT(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	ant := int(f.Idx)

	win := w.bufs.RXIQ.Window(slot, int(f.SymbolID), ant*w.dims.Subcarriers, w.dims.Subcarriers)
	kernel.FFT(win)

	w.report(tag.FFT, ev.Tags[0])
}

// doCSI estimates the channel matrix for every subcarrier in one block
// of one pilot symbol, writing BSAntennas x UEUsers entries per
// subcarrier into the CSI ring.
func (w *Worker) doCSI(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	block := int(f.Idx)
	lo := block * w.dims.DemulBlockSize
	hi := lo + w.dims.DemulBlockSize

	rxPilot := make([][]complex64, w.dims.BSAntennas)
	for a := range rxPilot {
		rxPilot[a] = w.bufs.RXIQ.Window(slot, int(f.SymbolID), a*w.dims.Subcarriers, w.dims.Subcarriers)
	}

	stride := w.dims.BSAntennas * w.dims.UEUsers
	for sc := lo; sc < hi; sc++ {
		out := w.bufs.CSI.Window(slot, 0, sc*stride, stride)
		kernel.EstimateCSI(rxPilot, w.pilot, sc, out)
	}

	w.report(tag.CSI, ev.Tags[0])
}

// doZF inverts the CSI matrix for every subcarrier in one block into a
// zero-forcing precoder, writing UEUsers x BSAntennas entries per
// subcarrier into the Precoder ring. Unstable subcarriers are logged but
// equalization proceeds on the best-effort precoder regardless (spec.md
// §4.7).
func (w *Worker) doZF(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	block := int(f.Idx)
	lo := block * w.dims.DemulBlockSize
	hi := lo + w.dims.DemulBlockSize

	csiStride := w.dims.BSAntennas * w.dims.UEUsers
	wStride := w.dims.UEUsers * w.dims.BSAntennas

	for sc := lo; sc < hi; sc++ {
		h := w.bufs.CSI.Window(slot, 0, sc*csiStride, csiStride)
		res := kernel.ComputeZF(h, w.dims.BSAntennas, w.dims.UEUsers, w.dims.ZFReg, w.dims.ZFCondThresh)
		if res.Unstable {
			log.Printf("worker %d: frame %d subcarrier %d: precoder numerically unstable, proceeding anyway", w.id, f.FrameID, sc)
		}
		copy(w.bufs.Precoder.Window(slot, 0, sc*wStride, wStride), res.W)
	}

	w.report(tag.ZF, ev.Tags[0])
}

// doDemul equalizes and demodulates every subcarrier in one block of one
// data symbol, writing per-bit LLRs into the Demod ring for every user.
func (w *Worker) doDemul(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	symbol := int(f.SymbolID)
	block := int(f.Idx)
	lo := block * w.dims.DemulBlockSize
	hi := lo + w.dims.DemulBlockSize

	bsAnt, ueNum := w.dims.BSAntennas, w.dims.UEUsers
	wStride := ueNum * bsAnt
	y := make([]complex64, bsAnt)
	xHat := make([]complex64, ueNum)

	for sc := lo; sc < hi; sc++ {
		for a := 0; a < bsAnt; a++ {
			y[a] = *w.bufs.RXIQ.At(w.bufs.RXIQ.Handle(f.FrameID, symbol, a*w.dims.Subcarriers+sc))
		}
		wRow := w.bufs.Precoder.Window(slot, 0, sc*wStride, wStride)
		kernel.Equalize(wRow, bsAnt, ueNum, y, xHat)
		copy(w.bufs.Equalized.Window(slot, symbol, sc*ueNum, ueNum), xHat)

		for u := 0; u < ueNum; u++ {
			llr := w.bufs.Demod.Window(slot, symbol, sc*ueNum*demodStride+u*demodStride, w.dims.ModOrderBits)
			kernel.Demodulate(xHat[u:u+1], w.dims.ModOrderBits, w.dims.NoiseVar, w.dims.SoftDemod, llr)
		}
	}

	w.report(tag.Demul, ev.Tags[0])
}

// doDecode gathers one user's LLRs across every subcarrier of one data
// symbol and runs LDPC belief propagation, packing the decoded message
// bits into the Decoded ring.
func (w *Worker) doDecode(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	symbol := int(f.SymbolID)
	user := int(f.Idx)

	llr := make([]float32, w.dims.CBCodewLen)
	for sc := 0; sc < w.dims.Subcarriers; sc++ {
		src := w.bufs.Demod.Window(slot, symbol, sc*w.dims.UEUsers*demodStride+user*demodStride, w.dims.ModOrderBits)
		copy(llr[sc*w.dims.ModOrderBits:], src)
	}

	msgBits, errors := w.code.Decode(llr, w.dims.DecoderIters)
	if errors != 0 {
		log.Printf("worker %d: frame %d symbol %d user %d: LDPC decode left %d unsatisfied checks", w.id, f.FrameID, symbol, user, errors)
	}

	packedLen := (w.dims.CBLen + 7) / 8
	copy(w.bufs.Decoded.Window(slot, symbol, user*packedLen, packedLen), kernel.PackBits(msgBits))

	w.report(tag.DecodeEvent, ev.Tags[0])
}

// downlinkSeed derives a deterministic PRNG seed for one (frame, symbol,
// user)'s synthesized downlink payload, so repeated runs over the same
// frame produce the same codeword without needing an upper-layer data
// source (spec.md Non-goals: no persistence layer).
func downlinkSeed(frameID uint32, symbol, user int) uint64 {
	return uint64(frameID)<<32 | uint64(symbol)<<16 | uint64(user)
}

// doEncode synthesizes one user's downlink message bits for one data
// symbol and LDPC-encodes them, the downlink mirror of doDecode, writing
// the packed codeword into the EncodedBD ring for Modulate to pick up.
func (w *Worker) doEncode(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	symbol := int(f.SymbolID)
	user := int(f.Idx)

	msgBits := kernel.PseudoRandomBits(downlinkSeed(f.FrameID, symbol, user), w.dims.CBLen)
	cw := w.code.Encode(msgBits)

	packedLen := (w.dims.CBCodewLen + 7) / 8
	copy(w.bufs.EncodedBD.Window(slot, symbol, user*packedLen, packedLen), kernel.PackBits(cw))

	w.report(tag.EncodeStage, ev.Tags[0])
}

// doModulate maps one user's downlink codeword for one data symbol onto
// the QAM constellation, one frequency-domain sample per subcarrier,
// writing into the ModFreq ring for IFFT to combine across users.
func (w *Worker) doModulate(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	symbol := int(f.SymbolID)
	user := int(f.Idx)

	packedLen := (w.dims.CBCodewLen + 7) / 8
	packed := w.bufs.EncodedBD.Window(slot, symbol, user*packedLen, packedLen)
	freq := kernel.Modulate(packed, w.dims.ModOrderBits, w.dims.Subcarriers)
	copy(w.bufs.ModFreq.Window(slot, symbol, user*w.dims.Subcarriers, w.dims.Subcarriers), freq)

	w.report(tag.Modulate, ev.Tags[0])
}

// doIFFT combines every user's modulated symbol for one antenna of one
// data symbol through the reused uplink ZF precoder (spec.md §4.7's
// reciprocity assumption: the same W that equalizes the uplink also
// precodes the downlink), then transforms the combined frequency-domain
// grid to the time domain in place in the TXIQ ring.
func (w *Worker) doIFFT(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	symbol := int(f.SymbolID)
	ant := int(f.Idx)

	bsAnt, ueNum, scNum := w.dims.BSAntennas, w.dims.UEUsers, w.dims.Subcarriers
	wStride := ueNum * bsAnt
	grid := w.bufs.TXIQ.Window(slot, symbol, ant*scNum, scNum)

	for sc := 0; sc < scNum; sc++ {
		wRow := w.bufs.Precoder.Window(slot, 0, sc*wStride, wStride)
		var sum complex64
		for u := 0; u < ueNum; u++ {
			modSym := w.bufs.ModFreq.Window(slot, symbol, u*scNum, scNum)[sc]
			sum += wRow[u*bsAnt+ant] * modSym
		}
		grid[sc] = sum
	}
	kernel.IFFT(grid)

	w.report(tag.IFFT, ev.Tags[0])
}

// doTX converts one antenna's finished downlink time-domain symbol to
// the int16 wire format and transmits it through whichever TX shard
// owns that antenna's socket, the downlink mirror of the RX shards'
// onPacket callback in cmd/decoder. TXShard.Send itself enqueues the
// PacketTX completion event, so no separate report call is needed here.
func (w *Worker) doTX(ev tag.Event) {
	f := tag.Decode(ev.Tags[0])
	slot := int(f.FrameID) % w.dims.FrameSlots
	symbol := int(f.SymbolID)
	ant := int(f.Idx)

	samples := w.bufs.TXIQ.Window(slot, symbol, ant*w.dims.Subcarriers, w.dims.Subcarriers)
	payload := make([]int16, 2*len(samples))
	kernel.ComplexToIQ(samples, payload)

	shardIdx := ant / w.txAntPerShard
	if shardIdx >= len(w.tx) {
		shardIdx = len(w.tx) - 1
	}
	hdr := netio.Header{FrameID: f.FrameID, SymbolID: uint32(symbol), CellID: 0, AntennaID: uint32(ant)}
	if err := w.tx[shardIdx].Send(hdr, payload); err != nil {
		log.Printf("worker %d: downlink tx: %v", w.id, err)
	}
}
