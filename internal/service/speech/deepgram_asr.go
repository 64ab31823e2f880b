package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	speechmodel "github.com/zhouzirui/live-interpreter/backend/internal/model/speech"
)

const (
	deepgramEndpoint     = "wss://api.deepgram.com/v1/listen"
	deepgramDefaultModel = "nova-3"
)

// DeepgramEngine Deepgram 流式识别
type DeepgramEngine struct {
	config *speechmodel.SpeechConfig
	logger *log.Logger
}

// NewDeepgramEngine 创建 Deepgram 识别后端
func NewDeepgramEngine(config *speechmodel.SpeechConfig) *DeepgramEngine {
	return &DeepgramEngine{
		config: config,
		logger: log.WithPrefix("deepgram"),
	}
}

// Name 引擎名称
func (e *DeepgramEngine) Name() string { return "deepgram" }

// deepgramLanguage Deepgram 使用不带地区的日语代码
func deepgramLanguage(locale string) string {
	if strings.HasPrefix(locale, "ja") {
		return "ja"
	}
	if locale == "" {
		return "en-US"
	}
	return locale
}

func (e *DeepgramEngine) buildURL(cfg StreamConfig) (string, error) {
	endpoint := deepgramEndpoint
	if e.config.DeepgramBaseURL != "" {
		endpoint = e.config.DeepgramBaseURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	model := e.config.DeepgramModel
	if model == "" {
		model = deepgramDefaultModel
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", deepgramLanguage(cfg.Locale))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open 建立 Deepgram 识别连接；握手完成即视为会话开始
func (e *DeepgramEngine) Open(ctx context.Context, cfg StreamConfig) (EngineStream, error) {
	key, err := resolveDeepgramKey(e.config)
	if err != nil {
		return nil, err
	}
	wsURL, err := e.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+key)

	dialCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	streamCtx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		conn:      conn,
		ctx:       streamCtx,
		cancel:    cancel,
		sessionID: cfg.SessionID,
		logger:    e.logger,
		results:   make(chan EngineResult, 32),
	}
	s.results <- EngineResult{Reason: ReasonSessionStarted}
	go s.readLoop()
	return s, nil
}

// deepgramResponse Deepgram 推送的消息，仅解析用到的字段
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStream struct {
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string
	logger    *log.Logger
	results   chan EngineResult

	writeMu     sync.Mutex
	writeClosed bool
	closeOnce   sync.Once
}

func (s *deepgramStream) Results() <-chan EngineResult { return s.results }

func (s *deepgramStream) Write(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeClosed {
		return ErrStreamClosed
	}
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm)
}

// CloseWrite 通知 Deepgram 冲刷剩余音频并结束会话
func (s *deepgramStream) CloseWrite() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeClosed {
		return nil
	}
	s.writeClosed = true
	return s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

func (s *deepgramStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *deepgramStream) emit(res EngineResult) bool {
	select {
	case s.results <- res:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *deepgramStream) finish(finals int) {
	if finals == 0 && !s.emit(EngineResult{Reason: ReasonNoMatch}) {
		return
	}
	s.emit(EngineResult{Reason: ReasonSessionStopped})
}

func (s *deepgramStream) readLoop() {
	defer close(s.results)

	finals := 0
	for {
		_, msg, err := s.conn.Read(s.ctx)
		if err != nil {
			switch {
			case s.ctx.Err() != nil:
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
				s.finish(finals)
			default:
				s.logger.Warn("read failed", "session", s.sessionID, "err", err)
				s.emit(EngineResult{Reason: ReasonCanceled, ErrorDetails: fmt.Sprintf("speech connection lost: %v", err)})
			}
			return
		}

		res, ok, stopped := parseDeepgramMessage(msg)
		if stopped {
			s.finish(finals)
			return
		}
		if !ok {
			continue
		}
		if res.Reason == ReasonRecognized {
			finals++
		}
		if !s.emit(res) {
			return
		}
	}
}

var errDeepgramMessage = errors.New("deepgram: unexpected message")

// parseDeepgramMessage 把一条服务端消息转换为引擎结果。
// Metadata 在 CloseStream 之后到达，表示会话结束；空白的最终结果忽略。
func parseDeepgramMessage(data []byte) (EngineResult, bool, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return EngineResult{}, false, false
	}

	switch resp.Type {
	case "Metadata":
		return EngineResult{}, false, true
	case "Error":
		return EngineResult{Reason: ReasonCanceled, ErrorDetails: fmt.Sprintf("%v: %s", errDeepgramMessage, data)}, true, false
	case "Results":
	default:
		return EngineResult{}, false, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return EngineResult{}, false, false
	}

	text := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
	if text == "" {
		return EngineResult{}, false, false
	}
	if resp.IsFinal {
		return EngineResult{Reason: ReasonRecognized, Text: text}, true, false
	}
	return EngineResult{Reason: ReasonRecognizing, Text: text}, true, false
}
