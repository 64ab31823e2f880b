package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	relaymodel "github.com/zhouzirui/live-interpreter/backend/internal/model/relay"
	"github.com/zhouzirui/live-interpreter/backend/pkg/audio"
)

var (
	serverURL   string
	audioPath   string
	audioFormat string
	language    string
	frameSize   time.Duration
	waitAfter   time.Duration
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream an audio file to /api/realtime and print transcripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		pcm, err := loadAudio(audioPath, audioFormat)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runStream(ctx, pcm)
	},
}

func init() {
	streamCmd.Flags().StringVar(&serverURL, "url", "ws://localhost:8080/api/realtime", "relay WebSocket URL")
	streamCmd.Flags().StringVar(&audioPath, "audio", "", "audio file (wav, pcm16 or f32)")
	streamCmd.Flags().StringVar(&audioFormat, "format", "", "wav | pcm16 | f32, defaults to the file extension")
	streamCmd.Flags().StringVar(&language, "lang", "ja", "recognition language (ja or en)")
	streamCmd.Flags().DurationVar(&frameSize, "frame", 100*time.Millisecond, "audio per frame, sent in real time")
	streamCmd.Flags().DurationVar(&waitAfter, "wait", 10*time.Second, "how long to wait for results after commit")
	_ = streamCmd.MarkFlagRequired("audio")
}

// loadAudio 读取文件并统一为 16kHz 单声道 PCM16
func loadAudio(path, format string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	switch format {
	case "wav":
		wav, pcm, err := audio.ReadWAV(data)
		if err != nil {
			return nil, err
		}
		if wav.SampleRate != audio.SampleRate {
			log.Warn("sample rate differs from the recognizer's", "file", wav.SampleRate, "want", audio.SampleRate)
		}
		return pcm, nil
	case "pcm", "pcm16", "raw":
		return data, nil
	case "f32", "float32":
		samples := make([]float32, len(data)/4)
		for i := range samples {
			samples[i] = float32FromLE(data[i*4:])
		}
		return audio.EncodePCM16(samples), nil
	default:
		return nil, fmt.Errorf("unsupported audio format %q", format)
	}
}

func runStream(ctx context.Context, pcm []byte) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", serverURL, err)
	}
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	ready := make(chan struct{})

	g.Go(func() error {
		return readEvents(gctx, conn, ready)
	})

	g.Go(func() error {
		if err := conn.WriteJSON(relaymodel.InboundMessage{Type: relaymodel.TypeStart, Language: language}); err != nil {
			return err
		}

		select {
		case <-ready:
		case <-gctx.Done():
			return gctx.Err()
		}

		bytesPerFrame := int(frameSize.Seconds()*audio.SampleRate) * 2
		if bytesPerFrame <= 0 {
			bytesPerFrame = audio.SampleRate / 5
		}
		ticker := time.NewTicker(frameSize)
		defer ticker.Stop()

		for offset := 0; offset < len(pcm); offset += bytesPerFrame {
			end := min(offset+bytesPerFrame, len(pcm))
			msg := relaymodel.InboundMessage{Type: relaymodel.TypeAudio, Audio: audio.EncodeFrame(pcm[offset:end])}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
			select {
			case <-ticker.C:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		log.Info("audio sent, committing", "bytes", len(pcm))
		if err := conn.WriteJSON(relaymodel.InboundMessage{Type: relaymodel.TypeCommit}); err != nil {
			return err
		}

		select {
		case <-time.After(waitAfter):
		case <-gctx.Done():
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return nil
	})

	err = g.Wait()
	if err != nil && websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return nil
	}
	return err
}

func readEvents(ctx context.Context, conn *websocket.Conn, ready chan<- struct{}) error {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	signaled := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		msg, err := parseServerMessage(data)
		if err != nil {
			log.Warn("malformed server message", "err", err)
			continue
		}

		switch msg := msg.(type) {
		case relaymodel.ReadyMessage:
			log.Info("recognizer ready")
			if !signaled {
				signaled = true
				close(ready)
			}
		case relaymodel.TranscriptMessage:
			if msg.IsPartial {
				log.Info("partial", "text", msg.Text)
			} else {
				fmt.Println(msg.Text)
			}
		case relaymodel.TranslationMessage:
			if msg.Error != "" {
				log.Warn("translation failed", "source", msg.SourceText, "err", msg.Error)
			} else {
				fmt.Printf("  [%s→%s] %s\n", msg.SourceLang, msg.TargetLang, msg.Text)
			}
		case relaymodel.ErrorMessage:
			if !signaled {
				return fmt.Errorf("server rejected start: %s", msg.Message)
			}
			log.Error("server error", "message", msg.Message)
		case relaymodel.ConfigMessage:
			log.Info("connected", "translatorConfigured", msg.TranslatorConfigured)
		default:
			log.Debug("unknown message", "raw", string(data))
		}
	}
}

// parseServerMessage 按 type 解码服务端消息；未知类型返回 nil
func parseServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	switch envelope.Type {
	case relaymodel.TypeReady:
		return decodeAs[relaymodel.ReadyMessage](envelope.Type, data)
	case relaymodel.TypeTranscript:
		return decodeAs[relaymodel.TranscriptMessage](envelope.Type, data)
	case relaymodel.TypeTranslation:
		return decodeAs[relaymodel.TranslationMessage](envelope.Type, data)
	case relaymodel.TypeError:
		return decodeAs[relaymodel.ErrorMessage](envelope.Type, data)
	case relaymodel.TypeConfig:
		return decodeAs[relaymodel.ConfigMessage](envelope.Type, data)
	default:
		return nil, nil
	}
}

func decodeAs[T any](typ string, data []byte) (any, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", typ, err)
	}
	return msg, nil
}

func float32FromLE(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
