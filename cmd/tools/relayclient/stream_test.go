package main

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	relaymodel "github.com/zhouzirui/live-interpreter/backend/internal/model/relay"
)

func TestLoadAudioFloat32(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:], math.Float32bits(1))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(-1))

	path := filepath.Join(t.TempDir(), "tone.f32")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pcm, err := loadAudio(path, "")
	if err != nil {
		t.Fatalf("loadAudio: %v", err)
	}
	if len(pcm) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(pcm))
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[0:])); got != 32767 {
		t.Fatalf("expected 32767, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[2:])); got != -32768 {
		t.Fatalf("expected -32768, got %d", got)
	}
}

func TestLoadAudioRawPassthrough(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	path := filepath.Join(t.TempDir(), "clip.pcm")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pcm, err := loadAudio(path, "")
	if err != nil {
		t.Fatalf("loadAudio: %v", err)
	}
	if string(pcm) != string(raw) {
		t.Fatalf("expected raw bytes unchanged, got %v", pcm)
	}
}

func TestLoadAudioUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, []byte{0}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadAudio(path, ""); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseServerMessage(t *testing.T) {
	msg, err := parseServerMessage([]byte(`{"type":"transcript","text":"hello","isPartial":true}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	transcript, ok := msg.(relaymodel.TranscriptMessage)
	if !ok || transcript.Text != "hello" || !transcript.IsPartial {
		t.Fatalf("unexpected message %#v", msg)
	}

	msg, err = parseServerMessage([]byte(`{"type":"config","translatorConfigured":true}`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg, ok := msg.(relaymodel.ConfigMessage); !ok || !cfg.TranslatorConfigured {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestParseServerMessageRejectsMalformedFields(t *testing.T) {
	for _, raw := range []string{
		`{"type":"transcript","text":42}`,
		`{"type":"transcript","text":"hi","isPartial":"yes"}`,
		`{"type":"error","message":["x"]}`,
		`not json`,
	} {
		if msg, err := parseServerMessage([]byte(raw)); err == nil {
			t.Errorf("%s: expected error, got %#v", raw, msg)
		}
	}
}

func TestParseServerMessageUnknownType(t *testing.T) {
	msg, err := parseServerMessage([]byte(`{"type":"diarization"}`))
	if err != nil || msg != nil {
		t.Fatalf("got %#v, %v; want nil, nil", msg, err)
	}
}
