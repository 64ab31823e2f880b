package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestEncodePCM16Scaling(t *testing.T) {
	pcm := EncodePCM16([]float32{0, 1, -1, 0.5, -0.5, 2, -3})
	if len(pcm) != 14 {
		t.Fatalf("expected 14 bytes, got %d", len(pcm))
	}

	want := []int16{0, 32767, -32768, 16383, -16384, 32767, -32768}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if got != w {
			t.Fatalf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestEncodePCM16NaNIsSilence(t *testing.T) {
	pcm := EncodePCM16([]float32{float32(math.NaN())})
	if !bytes.Equal(pcm, []byte{0, 0}) {
		t.Fatalf("expected silence for NaN, got %v", pcm)
	}
}

// TestPCMRoundTrip 编码再解码后误差不超过一个量化步长
func TestPCMRoundTrip(t *testing.T) {
	samples := make([]float32, 0, 401)
	for i := -200; i <= 200; i++ {
		samples = append(samples, float32(i)/200)
	}

	decoded := PCM16ToFloat(EncodePCM16(samples))
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}

	const step = 1.0 / 32767
	for i := range samples {
		if diff := math.Abs(float64(decoded[i] - samples[i])); diff > step {
			t.Fatalf("sample %d: |%f - %f| = %g exceeds %g", i, decoded[i], samples[i], diff, step)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	pcm := EncodePCM16([]float32{0.25, -0.75, 0.1})

	decoded, err := DecodeFrame(EncodeFrame(pcm))
	if err != nil {
		t.Fatalf("DecodeFrame err: %v", err)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Fatalf("frame mismatch: %v != %v", decoded, pcm)
	}
}

func TestDecodeFrameRejectsMalformedBase64(t *testing.T) {
	_, err := DecodeFrame("not base64!!")
	if err == nil {
		t.Fatalf("expected error for malformed payload")
	}

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
}

func TestReadWAV(t *testing.T) {
	pcm := EncodePCM16([]float32{0.1, 0.2, -0.3})
	wav := buildWAV(t, 16000, 1, 16, pcm)

	format, data, err := ReadWAV(wav)
	if err != nil {
		t.Fatalf("ReadWAV err: %v", err)
	}
	if format.SampleRate != 16000 {
		t.Fatalf("expected 16000Hz, got %d", format.SampleRate)
	}
	if !bytes.Equal(data, pcm) {
		t.Fatalf("pcm mismatch")
	}
}

func TestReadWAVRejectsStereo(t *testing.T) {
	wav := buildWAV(t, 16000, 2, 16, make([]byte, 8))
	if _, _, err := ReadWAV(wav); err == nil {
		t.Fatalf("expected stereo input to be rejected")
	}
}

func TestReadWAVRejectsRawPCM(t *testing.T) {
	if _, _, err := ReadWAV([]byte{1, 2, 3, 4}); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
}

func buildWAV(t *testing.T, rate uint32, channels, bits uint16, pcm []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	write := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write err: %v", err)
		}
	}

	buf.WriteString("RIFF")
	write(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1))
	write(channels)
	write(rate)
	write(rate * uint32(channels) * uint32(bits) / 8)
	write(channels * bits / 8)
	write(bits)
	buf.WriteString("data")
	write(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
