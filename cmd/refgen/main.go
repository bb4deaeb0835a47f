// Command refgen is the offline reference/data generator (spec.md §1,
// §6): it synthesizes one frame's worth of per-user message bits, LDPC
// codewords, and modulated symbols, spreads them across a synthetic
// per-antenna channel, and writes the fixed input/reference file set the
// real-time engine and sender read back for correctness and throughput
// benchmarking. Also emits a Parquet side-table with one row per
// codeblock (frame, symbol, user, parity-check error count, message bit
// count) for offline analysis, adapted from the teacher's
// parquet_writer.go CaptureSample schema and buffering discipline.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/segmentio/parquet-go"

	"github.com/massivemimo/baseband/internal/config"
	"github.com/massivemimo/baseband/internal/kernel"
)

// codeblockRow mirrors the teacher's per-sample Parquet row shape
// (fixed, flat columns rather than nested types, matching parquet-go's
// GenericWriter idiom) but for one codeblock instead of one IQ sample.
type codeblockRow struct {
	Frame   uint32  `parquet:"frame"`
	Symbol  uint16  `parquet:"symbol"`
	User    uint16  `parquet:"user"`
	Errors  int32   `parquet:"errors"`
	BitsLen int32   `parquet:"bits_len"`
}

func main() {
	confPath := flag.String("conf_file", "config.json", "path to the run configuration")
	outDir := flag.String("out_dir", "data", "directory to write reference files into")
	seed := flag.Int64("seed", 1, "deterministic PRNG seed")
	flag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Fatalf("refgen: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("refgen: mkdir %s: %v", *outDir, err)
	}

	rng := rand.New(rand.NewSource(*seed))
	code := kernel.NewCode(cfg.LDPC.Bg, cfg.LDPC.Zc, cfg.LDPC.CBLen, cfg.LDPC.CBCodewLen)

	pilots := make([][]complex64, cfg.UENum)
	for u := range pilots {
		pilots[u] = kernel.GeneratePilot(u, cfg.OFDMDataNum)
	}

	// Synthetic per-(antenna,user) channel: unit gain with a small
	// deterministic per-pair phase/amplitude perturbation, enough to make
	// zero-forcing inversion meaningful downstream without modeling real
	// RF propagation (out of scope, spec.md Non-goals: no over-the-air
	// radio control).
	h := make([][]complex64, cfg.BSAntNum)
	for a := range h {
		h[a] = make([]complex64, cfg.UENum)
		for u := range h[a] {
			re := 1 + float32(rng.NormFloat64())*0.05
			im := float32(rng.NormFloat64()) * 0.05
			h[a][u] = complex(re, im)
		}
	}

	rows := make([]codeblockRow, 0, cfg.UENum*len(cfg.DataSymbols()))
	var origBits = make([][]byte, cfg.UENum)  // per user, accumulated across data symbols
	var modData = make([][]complex64, cfg.UENum)

	txPerAntenna := make([][]complex64, cfg.BSAntNum) // per antenna, accumulated across symbols, time domain

	for symIdx, sym := range cfg.SymbolSchedule {
		freq := make([][]complex64, cfg.UENum) // per user, frequency-domain symbol for this schedule slot
		for u := 0; u < cfg.UENum; u++ {
			switch sym {
			case config.SymbolPilot:
				freq[u] = pilots[u]
			case config.SymbolData:
				msgBits := randomBits(rng, cfg.LDPC.CBLen)
				cw := code.Encode(msgBits)
				txSymbols := kernel.Modulate(kernel.PackBits(cw), cfg.ModOrderBits, cfg.OFDMDataNum)
				freq[u] = txSymbols
				origBits[u] = append(origBits[u], msgBits...)
				modData[u] = append(modData[u], txSymbols...)

				errors := code.Check(cw)
				rows = append(rows, codeblockRow{Symbol: uint16(symIdx), User: uint16(u), Errors: int32(errors), BitsLen: int32(len(msgBits))})
			default: // beacon: no payload this symbol
				freq[u] = make([]complex64, cfg.OFDMDataNum)
			}
		}

		for a := 0; a < cfg.BSAntNum; a++ {
			grid := make([]complex64, cfg.OFDMCANum)
			for sc := 0; sc < cfg.OFDMDataNum; sc++ {
				var sum complex64
				for u := 0; u < cfg.UENum; u++ {
					sum += h[a][u] * freq[u][sc]
				}
				grid[cfg.OFDMDataStart+sc] = sum
			}
			kernel.IFFT(grid)
			withCP := make([]complex64, cfg.CPLen+len(grid))
			kernel.CyclicPrefixInsert(withCP, grid, cfg.CPLen)
			txPerAntenna[a] = append(txPerAntenna[a], withCP...)
		}
	}

	prefix := "LDPC_"
	for a := 0; a < cfg.BSAntNum; a++ {
		path := filepath.Join(*outDir, fmt.Sprintf("%srx_data_2048_ant%d.bin", prefix, a))
		if err := writeComplexFloat32(path, txPerAntenna[a]); err != nil {
			log.Fatalf("refgen: %v", err)
		}
	}
	for u := 0; u < cfg.UENum; u++ {
		path := filepath.Join(*outDir, fmt.Sprintf("LDPC_orig_data_2048_ant%d.bin", u))
		if err := os.WriteFile(path, kernel.PackBits(origBits[u]), 0o644); err != nil {
			log.Fatalf("refgen: write %s: %v", path, err)
		}
	}

	var allMod []complex64
	for u := 0; u < cfg.UENum; u++ {
		allMod = append(allMod, modData[u]...)
	}
	if err := writeComplexFloat32(filepath.Join(*outDir, "encoded_mod_data.bin"), allMod); err != nil {
		log.Fatalf("refgen: %v", err)
	}

	if err := writeParquet(filepath.Join(*outDir, "codeblocks.parquet"), rows); err != nil {
		log.Fatalf("refgen: %v", err)
	}

	log.Printf("refgen: wrote reference data for %d antennas, %d users to %s", cfg.BSAntNum, cfg.UENum, *outDir)
}

func randomBits(rng *rand.Rand, n int) []byte {
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(rng.Intn(2))
	}
	return bits
}

// writeComplexFloat32 writes x as interleaved little-endian float32 I/Q
// pairs, the wire format spec.md §6 specifies for rx_data/encoded_mod
// reference files.
func writeComplexFloat32(path string, x []complex64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, len(x)*8)
	for i, c := range x {
		putFloat32LE(buf[i*8:], real(c))
		putFloat32LE(buf[i*8+4:], imag(c))
	}
	_, err = f.Write(buf)
	return err
}

func putFloat32LE(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func writeParquet(path string, rows []codeblockRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w := parquet.NewGenericWriter[codeblockRow](f)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return w.Close()
}
