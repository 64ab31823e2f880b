package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	speechmodel "github.com/zhouzirui/live-interpreter/backend/internal/model/speech"
)

const (
	// 双向流式模式（优化版本），边推流边返回结果
	volcengineASRURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"

	resourceDuration   = "volc.bigasr.sauc.duration"   // 小时版
	resourceConcurrent = "volc.bigasr.sauc.concurrent" // 并发版

	volcengineWriteTimeout = 10 * time.Second
)

// VolcengineEngine 火山引擎大模型流式识别
type VolcengineEngine struct {
	config *speechmodel.SpeechConfig
	logger *log.Logger
}

// NewVolcengineEngine 创建火山引擎识别后端
func NewVolcengineEngine(config *speechmodel.SpeechConfig) *VolcengineEngine {
	return &VolcengineEngine{
		config: config,
		logger: log.WithPrefix("volcengine"),
	}
}

// Name 引擎名称
func (e *VolcengineEngine) Name() string { return "volcengine" }

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// ASRRequest 火山引擎ASR请求结构（按文档格式）
type ASRRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

// buildASRRequest 构建符合火山引擎API格式的ASR请求
func (e *VolcengineEngine) buildASRRequest(cfg StreamConfig) *ASRRequest {
	req := &ASRRequest{}
	req.User.UID = cfg.SessionID

	req.Audio.Format = "pcm"
	req.Audio.Codec = "raw"
	req.Audio.Language = cfg.Locale
	req.Audio.Rate = cfg.SampleRate
	req.Audio.Bits = cfg.Bits
	req.Audio.Channel = cfg.Channels

	req.Request.ModelName = "bigmodel"
	if e.config.ASRModel != "" {
		req.Request.ModelName = e.config.ASRModel
	}
	req.Request.EnableITN = true      // 启用文本规范化
	req.Request.EnablePunc = true     // 启用标点
	req.Request.ShowUtterances = true // 分句信息用于判定最终结果
	req.Request.ResultType = "full"   // 全量返回结果
	req.Request.EndWindowSize = 800   // 强制判停时间800ms
	return req
}

// Open 建立识别连接并发送首包参数
func (e *VolcengineEngine) Open(ctx context.Context, cfg StreamConfig) (EngineStream, error) {
	appID, token, err := resolveCredentials(e.config)
	if err != nil {
		return nil, err
	}

	connectID := cfg.SessionID
	if connectID == "" {
		connectID = uuid.NewString()
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	resourceID := resourceDuration
	if e.config.ConcurrentMode {
		resourceID = resourceConcurrent
	}
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	url := volcengineASRURL
	if e.config.BaseURL != "" {
		url = e.config.BaseURL
	}

	conn, resp, err := dialWithRetry(ctx, url, header, dialOptions{
		HandshakeTimeout: e.config.Timeout,
		MaxRetries:       e.config.MaxRetries,
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
		e.logger.Info("connected", "session", cfg.SessionID, "logid", logid)
	}

	payload, err := json.Marshal(e.buildASRRequest(cfg))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	frame, err := newFullClientRequest(payload)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetWriteDeadline(time.Now().Add(volcengineWriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send ASR request: %w", err)
	}

	s := &volcengineStream{
		conn:      conn,
		sessionID: cfg.SessionID,
		logger:    e.logger,
		results:   make(chan EngineResult, 32),
		closed:    make(chan struct{}),
		sequence:  2, // FullClientRequest占用序号1，音频从2开始
	}
	s.results <- EngineResult{Reason: ReasonSessionStarted}
	go s.readLoop()
	return s, nil
}

type volcengineStream struct {
	conn      *websocket.Conn
	sessionID string
	logger    *log.Logger
	results   chan EngineResult

	writeMu     sync.Mutex
	sequence    int32
	writeClosed bool

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *volcengineStream) Results() <-chan EngineResult { return s.results }

func (s *volcengineStream) Write(pcm []byte) error {
	return s.send(pcm, false)
}

// CloseWrite 发送负序号的空包，服务端据此给出最终结果
func (s *volcengineStream) CloseWrite() error {
	return s.send(nil, true)
}

func (s *volcengineStream) send(pcm []byte, last bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeClosed {
		if last {
			return nil
		}
		return ErrStreamClosed
	}

	frame, err := newAudioRequest(pcm, s.sequence, last)
	if err != nil {
		return err
	}
	s.sequence++
	if last {
		s.writeClosed = true
	}

	s.conn.SetWriteDeadline(time.Now().Add(volcengineWriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Encode()); err != nil {
		return fmt.Errorf("failed to send audio chunk: %w", err)
	}
	return nil
}

func (s *volcengineStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
		s.writeMu.Lock()
		s.writeClosed = true
		s.writeMu.Unlock()
	})
	return err
}

func (s *volcengineStream) emit(res EngineResult) bool {
	select {
	case s.results <- res:
		return true
	case <-s.closed:
		return false
	}
}

func (s *volcengineStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *volcengineStream) readLoop() {
	defer close(s.results)

	var tracker utteranceTracker
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosed() {
				s.logger.Warn("read failed", "session", s.sessionID, "err", err)
				s.emit(EngineResult{Reason: ReasonCanceled, ErrorDetails: fmt.Sprintf("speech connection lost: %v", err)})
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			s.emit(EngineResult{Reason: ReasonCanceled, ErrorDetails: fmt.Sprintf("failed to decode ASR message: %v", err)})
			return
		}

		switch frame.Type {
		case ErrorMessage:
			payload, _ := frame.DecodedPayload()
			s.emit(EngineResult{Reason: ReasonCanceled, ErrorDetails: fmt.Sprintf("ASR error %d: %s", frame.ErrorCode, payload)})
			return

		case FullServerResponse:
			payload, err := frame.DecodedPayload()
			if err != nil {
				s.emit(EngineResult{Reason: ReasonCanceled, ErrorDetails: fmt.Sprintf("failed to decompress ASR payload: %v", err)})
				return
			}

			var msg asrServerMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				s.logger.Warn("failed to unmarshal response", "session", s.sessionID, "err", err)
				continue
			}
			if msg.Code != 0 && msg.Code != 20000000 {
				s.emit(EngineResult{Reason: ReasonCanceled, ErrorDetails: fmt.Sprintf("ASR API error %d: %s", msg.Code, msg.Message)})
				return
			}

			for _, res := range tracker.update(msg.Result.Utterances, msg.Result.Text) {
				if !s.emit(res) {
					return
				}
			}

			if frame.IsLast() || msg.Sequence < 0 {
				for _, res := range tracker.finish() {
					if !s.emit(res) {
						return
					}
				}
				s.emit(EngineResult{Reason: ReasonSessionStopped})
				return
			}

		default:
			// 其他类型（如音频ACK）直接忽略
		}
	}
}

// utteranceTracker 把全量返回的分句列表转换为增量的中间/最终结果
type utteranceTracker struct {
	committed int    // 已作为最终结果下发的分句数
	partial   string // 最近一次下发的中间结果
	finals    int
}

func (t *utteranceTracker) update(utterances []asrUtterance, fullText string) []EngineResult {
	// 未返回分句时把全文当作中间结果
	if len(utterances) == 0 {
		return t.recognizing(fullText)
	}

	var out []EngineResult
	for i := t.committed; i < len(utterances); i++ {
		u := utterances[i]
		if !u.Definite {
			out = append(out, t.recognizing(u.Text)...)
			break
		}
		t.committed++
		t.partial = ""
		if text := strings.TrimSpace(u.Text); text != "" {
			t.finals++
			out = append(out, EngineResult{Reason: ReasonRecognized, Text: text})
		}
	}
	return out
}

func (t *utteranceTracker) recognizing(text string) []EngineResult {
	text = strings.TrimSpace(text)
	if text == "" || text == t.partial {
		return nil
	}
	t.partial = text
	return []EngineResult{{Reason: ReasonRecognizing, Text: text}}
}

// finish 会话结束时把未判定的中间结果作为最终结果，整段无结果则报告无语音
func (t *utteranceTracker) finish() []EngineResult {
	var out []EngineResult
	if t.partial != "" {
		t.finals++
		out = append(out, EngineResult{Reason: ReasonRecognized, Text: t.partial})
		t.partial = ""
	}
	if t.finals == 0 {
		out = append(out, EngineResult{Reason: ReasonNoMatch})
	}
	return out
}
