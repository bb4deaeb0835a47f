// Command decoder is the real-time uplink/downlink engine (spec.md C6,
// C7, C5 wired together): RX shards feed a tag-addressed master
// scheduler that dispatches FFT/CSI/ZF/Demul/Decode tasks onto pinned
// worker shards, and the same master symmetrically fans out
// Encode/Modulate/IFFT/TX tasks for the downlink reverse of that
// pipeline, with live stats durably recorded and broadcast over a
// websocket dashboard. CLI/startup wiring follows the teacher's
// main.go/cli.go flag-then-dispatch shape.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/massivemimo/baseband/internal/config"
	"github.com/massivemimo/baseband/internal/kernel"
	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/monitor"
	"github.com/massivemimo/baseband/internal/netio"
	"github.com/massivemimo/baseband/internal/ring"
	"github.com/massivemimo/baseband/internal/runctl"
	"github.com/massivemimo/baseband/internal/sched"
	"github.com/massivemimo/baseband/internal/stats"
	"github.com/massivemimo/baseband/internal/tag"
	"github.com/massivemimo/baseband/internal/worker"
)

func main() {
	confFile := flag.String("conf_file", "config.json", "path to the run configuration")
	monitorPort := flag.Int("monitor_port", 8080, "HTTP port for the live dashboard websocket")
	statsFile := flag.String("stats_file", "data/tx_result.txt", "path to the per-frame stats file")
	ueBasePort := flag.Int("ue_base_port", 20000, "base UDP port the downlink TX shards dial on the UE/channelsim side")
	flag.Parse()

	cfg, err := config.Load(*confFile)
	if err != nil {
		log.Fatalf("decoder: %v", err)
	}

	running := runctl.New()

	bufs := ring.NewBuffers(ring.Dims{
		FrameSlots:      cfg.TaskBufferFrameNum,
		SymbolsPerFrame: len(cfg.SymbolSchedule),
		BSAntennas:      cfg.BSAntNum,
		UEUsers:         cfg.UENum,
		Subcarriers:     cfg.OFDMDataNum,
		CBLen:           cfg.LDPC.CBLen,
		CBCodewLen:      cfg.LDPC.CBCodewLen,
	})
	code := kernel.NewCode(cfg.LDPC.Bg, cfg.LDPC.Zc, cfg.LDPC.CBLen, cfg.LDPC.CBCodewLen)

	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 4
	}
	queueCap := cfg.TaskBufferFrameNum * len(cfg.SymbolSchedule) * cfg.BSAntNum
	if queueCap < 64 {
		queueCap = 64
	}

	msgQueue := lfq.New[tag.Event](queueCap)
	workerQ := worker.Queues{
		FFT:      lfq.NewShardSet[tag.Event](numWorkers, queueCap),
		CSI:      lfq.NewShardSet[tag.Event](numWorkers, queueCap),
		ZF:       lfq.NewShardSet[tag.Event](numWorkers, queueCap),
		Demul:    lfq.NewShardSet[tag.Event](numWorkers, queueCap),
		Decode:   lfq.NewShardSet[tag.Event](numWorkers, queueCap),
		Encode:   lfq.NewShardSet[tag.Event](numWorkers, queueCap),
		Modulate: lfq.NewShardSet[tag.Event](numWorkers, queueCap),
		IFFT:     lfq.NewShardSet[tag.Event](numWorkers, queueCap),
		TX:       lfq.NewShardSet[tag.Event](numWorkers, queueCap),
	}
	schedQ := sched.Queues{
		FFT: workerQ.FFT, CSI: workerQ.CSI, ZF: workerQ.ZF, Demul: workerQ.Demul, Decode: workerQ.Decode,
		Encode: workerQ.Encode, Modulate: workerQ.Modulate, IFFT: workerQ.IFFT, TX: workerQ.TX,
	}

	workerDims := worker.Dims{
		FrameSlots: cfg.TaskBufferFrameNum, SymbolsPerFrame: len(cfg.SymbolSchedule),
		BSAntennas: cfg.BSAntNum, UEUsers: cfg.UENum, Subcarriers: cfg.OFDMDataNum,
		DemulBlockSize: cfg.DemulBlockSize, ModOrderBits: cfg.ModOrderBits,
		CBLen: cfg.LDPC.CBLen, CBCodewLen: cfg.LDPC.CBCodewLen, DecoderIters: cfg.LDPC.DecoderIter,
		ZFReg: 1e-6, ZFCondThresh: 1e-4, NoiseVar: 1, SoftDemod: false,
	}

	// Downlink TX shards: one connected socket per BS antenna, split
	// across NumTXShards the same way the RX side splits antennas across
	// NumRXShards below. Destination mirrors cmd/channelsim's txToUE
	// (ClientAddr-side), since the decoder's downlink packets are the
	// per-antenna symbols a channel relay or UE-side receiver combines,
	// the same role channelsim's bsRX plays for the uplink direction.
	pktLen := netio.PacketLen(cfg.OFDMDataNum)
	numTXShards := cfg.NumTXShards
	if numTXShards <= 0 {
		numTXShards = 1
	}
	txAntPerShard := (cfg.BSAntNum + numTXShards - 1) / numTXShards
	var dlShards []*netio.TXShard
	for i := 0; i < numTXShards; i++ {
		lo, hi := i*txAntPerShard, (i+1)*txAntPerShard
		if hi > cfg.BSAntNum {
			hi = cfg.BSAntNum
		}
		if lo >= hi {
			continue
		}
		entityIDs := make([]uint16, 0, hi-lo)
		for a := lo; a < hi; a++ {
			entityIDs = append(entityIDs, uint16(a))
		}
		shard, err := netio.NewTXShard(i, cfg.ClientAddr, *ueBasePort, entityIDs, pktLen, msgQueue)
		if err != nil {
			log.Fatalf("decoder: %v", err)
		}
		dlShards = append(dlShards, shard)
		defer shard.Close()
	}

	for i := 0; i < numWorkers; i++ {
		core := -1
		if cfg.CoreOffset >= 0 {
			core = cfg.CoreOffset + i
		}
		w := worker.New(i, core, workerDims, bufs, code, workerQ, msgQueue, running, dlShards, txAntPerShard)
		go w.Run()
	}

	master := sched.New(cfg, msgQueue, schedQ, running)

	hub := monitor.NewHub()
	txStats, err := stats.NewTXWriter(*statsFile)
	if err != nil {
		log.Fatalf("decoder: %v", err)
	}
	defer txStats.Close()

	master.OnFrameComplete = func(frameID uint32) {
		now := time.Now()
		if err := txStats.RecordFrame(now); err != nil {
			log.Printf("decoder: stats write: %v", err)
		}
		hub.Broadcast(monitor.FrameEvent{
			Type: "frame_complete", FrameID: frameID,
			FramesDone: master.FramesCompleted(), DroppedSlots: master.DroppedSlots(),
		})
	}

	http.HandleFunc("/ws", hub.ServeWS)
	go func() {
		addr := fmt.Sprintf(":%d", *monitorPort)
		log.Printf("decoder: dashboard listening on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("decoder: dashboard server stopped: %v", err)
		}
	}()

	onPacket := func(h netio.Header, buf []byte) {
		payload := netio.PayloadInt16(buf)
		samples := kernel.IQToComplex(payload)
		n := cfg.OFDMDataNum
		if len(samples) < n {
			n = len(samples)
		}
		slot := int(h.FrameID) % cfg.TaskBufferFrameNum
		dst := bufs.RXIQ.Window(slot, int(h.SymbolID), int(h.AntennaID)*cfg.OFDMDataNum, cfg.OFDMDataNum)
		copy(dst, samples[:n])
	}

	numRXShards := cfg.NumRXShards
	if numRXShards <= 0 {
		numRXShards = 1
	}
	antPerShard := (cfg.BSAntNum + numRXShards - 1) / numRXShards
	var rxShards []*netio.RXShard
	for i := 0; i < numRXShards; i++ {
		lo, hi := i*antPerShard, (i+1)*antPerShard
		if hi > cfg.BSAntNum {
			hi = cfg.BSAntNum
		}
		if lo >= hi {
			continue
		}
		shard, err := netio.NewRXShard(i, cfg.BasePort, lo, hi, pktLen, msgQueue, running, onPacket)
		if err != nil {
			log.Fatalf("decoder: %v", err)
		}
		rxShards = append(rxShards, shard)
		go shard.Run()
	}

	start := time.Now()
	master.Run()

	for _, s := range rxShards {
		s.Close()
	}

	stats.PrintTable(stats.Summary{
		FramesCompleted: master.FramesCompleted(),
		DroppedSlots:    master.DroppedSlots(),
		Elapsed:         time.Since(start),
	})
}
