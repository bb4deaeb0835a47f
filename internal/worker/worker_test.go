package worker

import (
	"reflect"
	"testing"

	"github.com/massivemimo/baseband/internal/kernel"
	"github.com/massivemimo/baseband/internal/lfq"
	"github.com/massivemimo/baseband/internal/ring"
	"github.com/massivemimo/baseband/internal/runctl"
	"github.com/massivemimo/baseband/internal/tag"
)

func testWorker(t *testing.T, dims Dims, code *kernel.Code) (*Worker, Queues) {
	t.Helper()
	bufs := ring.NewBuffers(ring.Dims{
		FrameSlots:      dims.FrameSlots,
		SymbolsPerFrame: dims.SymbolsPerFrame,
		BSAntennas:      dims.BSAntennas,
		UEUsers:         dims.UEUsers,
		Subcarriers:     dims.Subcarriers,
		CBLen:           dims.CBLen,
		CBCodewLen:      dims.CBCodewLen,
	})
	q := Queues{
		FFT:      lfq.NewShardSet[tag.Event](1, 16),
		CSI:      lfq.NewShardSet[tag.Event](1, 16),
		ZF:       lfq.NewShardSet[tag.Event](1, 16),
		Demul:    lfq.NewShardSet[tag.Event](1, 16),
		Decode:   lfq.NewShardSet[tag.Event](1, 16),
		Encode:   lfq.NewShardSet[tag.Event](1, 16),
		Modulate: lfq.NewShardSet[tag.Event](1, 16),
		IFFT:     lfq.NewShardSet[tag.Event](1, 16),
	}
	complete := lfq.New[tag.Event](16)
	w := New(0, -1, dims, bufs, code, q, complete, runctl.New(), nil, 1)
	return w, q
}

// TestDoFFTTransformsInPlace checks the FFT stage transforms exactly the
// antenna window it is tagged for and leaves neighboring antennas alone.
func TestDoFFTTransformsInPlace(t *testing.T) {
	dims := Dims{FrameSlots: 2, SymbolsPerFrame: 1, BSAntennas: 2, UEUsers: 1, Subcarriers: 4, DemulBlockSize: 4, ModOrderBits: 2, CBLen: 8, CBCodewLen: 16}
	w, q := testWorker(t, dims, nil)

	sample := []complex64{1, 2, 3, 4}
	copy(w.bufs.RXIQ.Window(0, 0, 0, 4), sample)
	untouched := []complex64{5, 6, 7, 8}
	copy(w.bufs.RXIQ.Window(0, 0, 4, 4), untouched)

	want := append([]complex64{}, sample...)
	kernel.FFT(want)

	ev := tag.NewEvent(tag.FFT, tag.Encode(tag.TypeAntennas, 0, 0, 0))
	q.FFT.Shard(0).TryEnqueue(ev)
	gotEv, _ := q.FFT.Shard(0).TryDequeue()
	w.doFFT(gotEv)

	got := w.bufs.RXIQ.Window(0, 0, 0, 4)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("antenna 0 sample %d: got %v want %v", i, got[i], want[i])
		}
	}
	other := w.bufs.RXIQ.Window(0, 0, 4, 4)
	for i := range untouched {
		if other[i] != untouched[i] {
			t.Fatalf("antenna 1 (untagged) sample %d was modified: got %v want %v", i, other[i], untouched[i])
		}
	}
}

// TestCSIZFDemulDecodePipelineNoiselessIdentityChannel drives CSI, ZF,
// Demul, and Decode through a single-antenna single-user identity
// channel and checks the decoded message bits match what was encoded and
// modulated, exercising every kernel adapter the worker wires together.
func TestCSIZFDemulDecodePipelineNoiselessIdentityChannel(t *testing.T) {
	const subcarriers = 8
	const cbLen, cbCodewLen = 8, 16
	code := kernel.NewCode(1, 2, cbLen, cbCodewLen)

	dims := Dims{
		FrameSlots: 2, SymbolsPerFrame: 2, BSAntennas: 1, UEUsers: 1,
		Subcarriers: subcarriers, DemulBlockSize: subcarriers, ModOrderBits: 2,
		CBLen: cbLen, CBCodewLen: cbCodewLen, DecoderIters: 20,
		ZFReg: 1e-6, ZFCondThresh: -1, SoftDemod: false,
	}
	w, q := testWorker(t, dims, code)

	const frame = uint32(0)
	const pilotSym, dataSym = 0, 1

	// Identity channel: received pilot equals the known pilot exactly.
	copy(w.bufs.RXIQ.Window(0, pilotSym, 0, subcarriers), w.pilot[0])

	csiEv := tag.NewEvent(tag.CSI, tag.Encode(tag.TypeSubcarriers, frame, pilotSym, 0))
	q.CSI.Shard(0).TryEnqueue(csiEv)
	ev, _ := q.CSI.Shard(0).TryDequeue()
	w.doCSI(ev)

	zfEv := tag.NewEvent(tag.ZF, tag.Encode(tag.TypeSubcarriers, frame, pilotSym, 0))
	q.ZF.Shard(0).TryEnqueue(zfEv)
	ev, _ = q.ZF.Shard(0).TryDequeue()
	w.doZF(ev)

	msgBits := []byte{1, 0, 1, 1, 0, 0, 1, 0}
	codeword := code.Encode(msgBits)
	txSymbols := kernel.Modulate(kernel.PackBits(codeword), dims.ModOrderBits, subcarriers)

	// Identity channel: received data symbols equal the transmitted ones.
	copy(w.bufs.RXIQ.Window(int(frame%2), dataSym, 0, subcarriers), txSymbols)

	demulEv := tag.NewEvent(tag.Demul, tag.Encode(tag.TypeSubcarriers, frame, dataSym, 0))
	q.Demul.Shard(0).TryEnqueue(demulEv)
	ev, _ = q.Demul.Shard(0).TryDequeue()
	w.doDemul(ev)

	decodeEv := tag.NewEvent(tag.DecodeEvent, tag.Encode(tag.TypeUsers, frame, dataSym, 0))
	q.Decode.Shard(0).TryEnqueue(decodeEv)
	ev, _ = q.Decode.Shard(0).TryDequeue()
	w.doDecode(ev)

	packedLen := (cbLen + 7) / 8
	got := kernel.UnpackBits(w.bufs.Decoded.Window(int(frame%2), dataSym, 0, packedLen), cbLen)
	if !reflect.DeepEqual(got, msgBits) {
		t.Fatalf("decoded bits = %v, want %v", got, msgBits)
	}
}

// TestEncodeModulateIFFTDownlinkPipelineSingleAntennaUser drives the
// downlink stages (the reverse of the pipeline above) through a single
// antenna, single user identity channel, and checks that IFFT followed
// by FFT recovers the modulated frequency-domain symbol the precoder
// passed through unchanged — the downlink analog of the uplink test's
// identity-channel check.
func TestEncodeModulateIFFTDownlinkPipelineSingleAntennaUser(t *testing.T) {
	const subcarriers = 8
	const cbLen, cbCodewLen = 8, 16
	code := kernel.NewCode(1, 2, cbLen, cbCodewLen)

	dims := Dims{
		FrameSlots: 2, SymbolsPerFrame: 2, BSAntennas: 1, UEUsers: 1,
		Subcarriers: subcarriers, DemulBlockSize: subcarriers, ModOrderBits: 2,
		CBLen: cbLen, CBCodewLen: cbCodewLen, DecoderIters: 20,
		ZFReg: 1e-6, ZFCondThresh: -1, SoftDemod: false,
	}
	w, q := testWorker(t, dims, code)

	const frame = uint32(0)
	const pilotSym, dataSym = 0, 1

	// Identity channel, same as the uplink test: CSI/ZF drive the
	// precoder to the scalar 1 so downlink precoding is a no-op.
	copy(w.bufs.RXIQ.Window(0, pilotSym, 0, subcarriers), w.pilot[0])
	csiEv := tag.NewEvent(tag.CSI, tag.Encode(tag.TypeSubcarriers, frame, pilotSym, 0))
	q.CSI.Shard(0).TryEnqueue(csiEv)
	ev, _ := q.CSI.Shard(0).TryDequeue()
	w.doCSI(ev)

	zfEv := tag.NewEvent(tag.ZF, tag.Encode(tag.TypeSubcarriers, frame, pilotSym, 0))
	q.ZF.Shard(0).TryEnqueue(zfEv)
	ev, _ = q.ZF.Shard(0).TryDequeue()
	w.doZF(ev)

	encEv := tag.NewEvent(tag.EncodeStage, tag.Encode(tag.TypeUsers, frame, dataSym, 0))
	q.Encode.Shard(0).TryEnqueue(encEv)
	ev, _ = q.Encode.Shard(0).TryDequeue()
	w.doEncode(ev)

	modEv := tag.NewEvent(tag.Modulate, tag.Encode(tag.TypeUsers, frame, dataSym, 0))
	q.Modulate.Shard(0).TryEnqueue(modEv)
	ev, _ = q.Modulate.Shard(0).TryDequeue()
	w.doModulate(ev)

	want := append([]complex64{}, w.bufs.ModFreq.Window(int(frame%2), dataSym, 0, subcarriers)...)

	ifftEv := tag.NewEvent(tag.IFFT, tag.Encode(tag.TypeAntennas, frame, dataSym, 0))
	q.IFFT.Shard(0).TryEnqueue(ifftEv)
	ev, _ = q.IFFT.Shard(0).TryDequeue()
	w.doIFFT(ev)

	got := append([]complex64{}, w.bufs.TXIQ.Window(int(frame%2), dataSym, 0, subcarriers)...)
	kernel.FFT(got)
	for i := range want {
		diff := got[i] - want[i]
		if re, im := real(diff), imag(diff); re*re+im*im > 1e-4 {
			t.Fatalf("subcarrier %d: ifft-then-fft = %v, want %v", i, got[i], want[i])
		}
	}
}
