package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/teslashibe/tonelink/pkg/fixedpoint"
	"github.com/teslashibe/tonelink/pkg/frame"
	"github.com/teslashibe/tonelink/pkg/tone"
	"github.com/teslashibe/tonelink/pkg/wavfile"
)

func TestEncode_TelemetryScenario(t *testing.T) {
	res, err := Encode(Telemetry(), []float64{1.3, 0.8})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if res.Frame.Data != 0x014D00CD {
		t.Errorf("expected packed word 0x014D00CD, got 0x%08X", res.Frame.Data)
	}
	if res.Frame.Checksum != 0x014D^0x00CD {
		t.Errorf("expected checksum 0x%04X, got 0x%04X", 0x014D^0x00CD, res.Frame.Checksum)
	}

	want := []byte{0xD5, 0xAA, 0x01, 0x4D, 0x00, 0xCD, 0x01, 0x80}
	if !bytes.Equal(res.Bytes, want) {
		t.Errorf("expected frame % X, got % X", want, res.Bytes)
	}
	if len(res.Samples) != 847320 {
		t.Errorf("expected 847320 samples, got %d", len(res.Samples))
	}
	if len(res.Audio) != 44+1694640 {
		t.Errorf("expected %d container bytes, got %d", 44+1694640, len(res.Audio))
	}
	if size := binary.LittleEndian.Uint32(res.Audio[40:44]); size != 1694640 {
		t.Errorf("expected data chunk 1694640, got %d", size)
	}
	if riff := binary.LittleEndian.Uint32(res.Audio[4:8]); riff != 1694676 {
		t.Errorf("expected RIFF size 1694676, got %d", riff)
	}
	if res.AnySaturated() || res.Err() != nil {
		t.Errorf("expected no saturation, got %v", res.Saturated)
	}
}

func TestEncodeRaw_LiteralScenario(t *testing.T) {
	res, err := EncodeRaw(Literal(), 0b01010110110111010101100110011101)
	if err != nil {
		t.Fatalf("EncodeRaw() error = %v", err)
	}

	want := []byte{0xAA, 0x56, 0xDD, 0x59, 0x9D, 0x0F, 0x40}
	if !bytes.Equal(res.Bytes, want) {
		t.Errorf("expected frame % X, got % X", want, res.Bytes)
	}
	if spb := res.Config.Tone.SamplesPerBit(); spb != 2205 {
		t.Errorf("expected 2205 samples per bit, got %d", spb)
	}
	if len(res.Samples) != 8*len(want)*2205 {
		t.Errorf("expected %d samples, got %d", 8*len(want)*2205, len(res.Samples))
	}
	if res.Saturated != nil {
		t.Errorf("raw payload should not report saturation, got %v", res.Saturated)
	}
}

func TestEncode_OutputLengthLaw(t *testing.T) {
	for name, cfg := range Presets() {
		res, err := EncodeRaw(cfg, 0x12345678)
		if err != nil {
			t.Fatalf("%s: EncodeRaw() error = %v", name, err)
		}
		want := 8 * len(res.Bytes) * cfg.Tone.SamplesPerBit()
		if len(res.Samples) != want || cfg.SampleCount() != want {
			t.Errorf("%s: expected %d samples, got %d", name, want, len(res.Samples))
		}
	}
}

func TestEncode_RawPresetRejectsValues(t *testing.T) {
	_, err := Encode(Literal(), []float64{1})
	if !errors.Is(err, ErrPayloadKind) {
		t.Errorf("expected ErrPayloadKind, got %v", err)
	}
}

func TestEncode_SaturationIsObservable(t *testing.T) {
	res, err := Encode(Telemetry(), []float64{500, -0.25})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if res.Frame.Data != 0x7FFFFFC0 {
		t.Errorf("expected 0x7FFFFFC0, got 0x%08X", res.Frame.Data)
	}
	if !res.AnySaturated() || !res.Saturated[0] || res.Saturated[1] {
		t.Errorf("expected [true false], got %v", res.Saturated)
	}
	if !errors.Is(res.Err(), ErrSaturated) {
		t.Errorf("expected ErrSaturated, got %v", res.Err())
	}
}

func TestEncode_ValueCountMismatch(t *testing.T) {
	_, err := Encode(Telemetry(), []float64{1.3})
	if !errors.Is(err, fixedpoint.ErrFieldCount) {
		t.Errorf("expected ErrFieldCount, got %v", err)
	}
}

func TestDecode_RoundTripValues(t *testing.T) {
	cfg := Telemetry()
	inputs := [][]float64{{1.3, 0.8}, {-1, 2}, {0, 0}, {127.99, -128}, {-0.004, 0.002}}
	bound := fixedpoint.Q7_8.Resolution() / 2

	for _, in := range inputs {
		res, err := Encode(cfg, in)
		if err != nil {
			t.Fatalf("Encode(%v) error = %v", in, err)
		}
		d, err := Decode(cfg, res.Bytes)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !d.ChecksumOK || !d.WakeOK {
			t.Errorf("expected valid frame for %v, got %+v", in, d.Decoded)
		}
		for i := range in {
			if math.Abs(d.Values[i]-in[i]) > bound {
				t.Errorf("value %d: sent %v, recovered %v", i, in[i], d.Values[i])
			}
		}
	}
}

func TestDecode_RawHasNoValues(t *testing.T) {
	res, _ := EncodeRaw(Literal(), 42)
	d, err := Decode(Literal(), res.Bytes)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if d.Data != 42 || d.Values != nil {
		t.Errorf("unexpected decode %+v", d)
	}
}

func TestDecode_Truncated(t *testing.T) {
	_, err := Decode(Telemetry(), []byte{0xD5, 0xAA})
	if !errors.Is(err, frame.ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestDecode_ChecksumMismatchIsNotFatal(t *testing.T) {
	res, _ := Encode(Telemetry(), []float64{1.3, 0.8})
	b := append([]byte(nil), res.Bytes...)
	b[3] ^= 0x10

	d, err := Decode(Telemetry(), b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if d.ChecksumOK {
		t.Error("expected checksum mismatch")
	}
	if !errors.Is(d.Err(), frame.ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", d.Err())
	}
	if len(d.Values) != 2 {
		t.Errorf("values should still be reported, got %v", d.Values)
	}
}

func TestScan_FindsFramesInStream(t *testing.T) {
	cfg := Telemetry()
	one, _ := Encode(cfg, []float64{1.3, 0.8})
	two, _ := Encode(cfg, []float64{-3.5, 64})

	stream := append([]byte{0x00, 0x42}, one.Bytes...)
	stream = append(stream, 0x00)
	stream = append(stream, two.Bytes...)

	found, err := Scan(cfg, stream)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(found))
	}
	if found[1].Values[0] != -3.5 || found[1].Values[1] != 64 {
		t.Errorf("unexpected values %v", found[1].Values)
	}
}

func TestWriteFile(t *testing.T) {
	res, err := EncodeRaw(Literal(), 0x56DD599D)
	if err != nil {
		t.Fatalf("EncodeRaw() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "literal.wav")
	if err := WriteFile(path, res); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c, err := wavfile.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if c.SampleRate != 44100 || len(c.Samples) != len(res.Samples) {
		t.Errorf("unexpected container: rate %d, %d samples", c.SampleRate, len(c.Samples))
	}
}

func TestWriteFile_ReportsIOFailure(t *testing.T) {
	res, _ := EncodeRaw(Literal(), 1)
	err := WriteFile(filepath.Join(t.TempDir(), "no", "such", "dir.wav"), res)
	if !errors.Is(err, wavfile.ErrIO) {
		t.Errorf("expected wavfile.ErrIO, got %v", err)
	}
}

func TestEncode_ConcurrentCallsAreIndependent(t *testing.T) {
	cfg := Literal()
	want, err := EncodeRaw(cfg, 0xCAFEBABE)
	if err != nil {
		t.Fatalf("EncodeRaw() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := EncodeRaw(cfg, 0xCAFEBABE)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got.Audio, want.Audio) {
				errs <- errors.New("concurrent encode produced different audio")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestEncode_InvalidConfig(t *testing.T) {
	cfg := Literal()
	cfg.Tone.Amplitude = 2
	_, err := EncodeRaw(cfg, 1)
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, tone.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidConfig wrapping tone.ErrInvalidParams, got %v", err)
	}
}

func BenchmarkEncode_Literal(b *testing.B) {
	cfg := Literal()
	for i := 0; i < b.N; i++ {
		_, _ = EncodeRaw(cfg, 0x56DD599D)
	}
}
