// Command sender is the standalone pacing replayer (spec.md C9): it
// reads prepared per-antenna IQ off disk and transmits it at a
// configured frame cadence, complete with the slow-start ramp spec.md
// §4.8 describes, as if it were a live base station. It does not touch
// the real-time engine's internal/sched pipeline — C9 is explicitly
// "an independent program" with its own much simpler preload/dispatch/
// pace loop, grounded on the same worker-pool and pinning idiom as
// cmd/decoder rather than on internal/sched itself.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/massivemimo/baseband/internal/affinity"
	"github.com/massivemimo/baseband/internal/config"
	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/netio"
	"github.com/massivemimo/baseband/internal/pacer"
	"github.com/massivemimo/baseband/internal/runctl"
	"github.com/massivemimo/baseband/internal/tag"
)

func main() {
	numThreads := flag.Int("num_threads", 4, "sending worker thread count")
	coreOffset := flag.Int("core_offset", -1, "first CPU core to pin worker threads to, -1 to disable pinning")
	delayUS := flag.Float64("delay", 5000, "target per-frame delay in microseconds")
	serverAddr := flag.String("server_mac_addr", "", "destination address (overrides conf_file's server_addr; named for CLI parity with the original MAC-layer sender, carried here over UDP since this transport is socket-based, not raw L2)")
	confFile := flag.String("conf_file", "config.json", "path to the run configuration")
	enableSlowStart := flag.Bool("enable_slow_start", true, "use the fixed slow-start per-symbol budgets for the first 500 frames before the steady-state budget")
	dataDir := flag.String("data_dir", "data", "directory holding the per-antenna reference capture")
	flag.Parse()

	cfg, err := config.Load(*confFile)
	if err != nil {
		log.Printf("sender: %v", err)
		os.Exit(1)
	}
	dest := cfg.ServerAddr
	if *serverAddr != "" {
		dest = *serverAddr
	}

	symLen := cfg.CPLen + cfg.OFDMCANum
	perAntenna := make([][][]complex64, cfg.BSAntNum) // [antenna][symbol-in-frame][sample]
	for a := 0; a < cfg.BSAntNum; a++ {
		path := filepath.Join(*dataDir, fmt.Sprintf("LDPC_rx_data_2048_ant%d.bin", a))
		samples, err := readComplexFloat32(path)
		if err != nil {
			log.Printf("sender: %v", err)
			os.Exit(1)
		}
		perAntenna[a] = splitSymbols(samples, symLen, len(cfg.SymbolSchedule))
	}

	running := runctl.New()
	p := pacer.New()
	defer p.Close()

	entityIDs := make([]uint16, cfg.BSAntNum)
	for a := range entityIDs {
		entityIDs[a] = uint16(a)
	}
	pktLen := netio.PacketLen(symLen)
	completeQueue := lfq.New[tag.Event](cfg.BSAntNum * 4)
	tx, err := netio.NewTXShard(0, dest, cfg.BasePort, entityIDs, pktLen, completeQueue)
	if err != nil {
		log.Printf("sender: %v", err)
		os.Exit(1)
	}
	defer tx.Close()

	taskQ := lfq.NewShardSet[tag.Event](*numThreads, cfg.BSAntNum*2)
	for i := 0; i < *numThreads; i++ {
		go sendWorker(i, *coreOffset, taskQ.Shard(i), perAntenna, tx, running)
	}

	ticksAll := pacer.TickBudget(*delayUS, len(cfg.SymbolSchedule))
	dataSymbols := len(cfg.DataSymbols())

	frame := 0
	for !running.Done() {
		if cfg.FramesToTest > 0 && frame >= cfg.FramesToTest {
			break
		}
		budget := ticksAll
		if *enableSlowStart {
			budget = pacer.SlowStartBudget(frame, ticksAll)
		}

		for symIdx := range cfg.SymbolSchedule {
			deadline := p.Now() + budget
			for a := 0; a < cfg.BSAntNum; a++ {
				ev := tag.NewEvent(tag.PacketTX, tag.Encode(tag.TypeAntennas, uint32(frame), uint16(symIdx), uint16(a)))
				taskQ.TryEnqueueTo(a%*numThreads, ev, func() {
					log.Printf("sender: backpressure on worker %d, blocking", a%*numThreads)
				})
			}
			drained := 0
			buf := make([]tag.Event, cfg.BSAntNum)
			for drained < cfg.BSAntNum && !running.Done() {
				drained += completeQueue.DequeueBulk(buf[drained:])
			}
			p.WaitUntil(deadline)
		}

		interFrame := dataSymbols
		if frame < 500 {
			interFrame = 2 * dataSymbols
		}
		p.WaitUntil(p.Now() + int64(interFrame)*budget)
		frame++
	}

	log.Printf("sender: transmitted %d frames", frame)
}

// sendWorker owns a disjoint subset of antennas (a%numThreads == id) and
// drains its task shard, building and transmitting one packet per task —
// the same "workers build headers, copy IQ, transmit, enqueue completion"
// loop spec.md §4.8 describes, minus the frame-slot ring since the
// sender's payload is the static preloaded capture rather than a
// pipeline stage's output.
func sendWorker(id, coreOffset int, q *lfq.Queue[tag.Event], perAntenna [][][]complex64, tx *netio.TXShard, running *runctl.Token) {
	if coreOffset >= 0 {
		runtime.LockOSThread()
		affinity.Pin(coreOffset + id)
	}
	for !running.Done() {
		ev, ok := q.TryDequeue()
		if !ok {
			continue
		}
		f := tag.Decode(ev.Tags[0])
		ant := int(f.Idx)
		symbols := perAntenna[ant]
		samples := symbols[int(f.SymbolID)%len(symbols)]
		payload := complexToInt16(samples)
		hdr := netio.Header{FrameID: f.FrameID, SymbolID: uint32(f.SymbolID), CellID: 0, AntennaID: uint32(ant)}
		if err := tx.Send(hdr, payload); err != nil {
			log.Printf("sender: worker %d: %v", id, err)
			running.Stop()
			return
		}
	}
}

// readComplexFloat32 reads interleaved little-endian float32 I/Q pairs,
// the inverse of cmd/refgen's writeComplexFloat32.
func readComplexFloat32(path string) ([]complex64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	n := len(data) / 8
	out := make([]complex64, n)
	for i := 0; i < n; i++ {
		re := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8+4:]))
		out[i] = complex(re, im)
	}
	return out, nil
}

// splitSymbols chops a flat capture into up to wantSymbols consecutive
// windows of symLen samples each, cycling back to the start of the
// capture if it holds fewer symbols than the schedule needs — a
// replay-mode simplification since a single refgen run emits one
// frame's worth of symbols, not an arbitrarily long capture.
func splitSymbols(flat []complex64, symLen, wantSymbols int) [][]complex64 {
	total := len(flat) / symLen
	if total == 0 {
		return nil
	}
	out := make([][]complex64, wantSymbols)
	for i := 0; i < wantSymbols; i++ {
		src := i % total
		out[i] = flat[src*symLen : (src+1)*symLen]
	}
	return out
}

// complexToInt16 quantizes float IQ samples to the int16 wire format
// spec.md §6 specifies for the packet payload.
func complexToInt16(x []complex64) []int16 {
	out := make([]int16, 2*len(x))
	for i, c := range x {
		out[2*i] = clampInt16(real(c))
		out[2*i+1] = clampInt16(imag(c))
	}
	return out
}

func clampInt16(v float32) int16 {
	scaled := v * 32767
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
