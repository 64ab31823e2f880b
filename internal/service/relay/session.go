// Package relay 实现实时识别连接的会话状态机、翻译队列与连接注册表
package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	relaymodel "github.com/zhouzirui/live-interpreter/backend/internal/model/relay"
	"github.com/zhouzirui/live-interpreter/backend/internal/observe"
	"github.com/zhouzirui/live-interpreter/backend/internal/service/speech"
	"github.com/zhouzirui/live-interpreter/backend/internal/service/translation"
	"github.com/zhouzirui/live-interpreter/backend/pkg/audio"
)

// State 会话状态
type State int32

const (
	StateIdle State = iota
	StateRecognizing
	StateCommitting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecognizing:
		return "recognizing"
	case StateCommitting:
		return "committing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sender 向客户端写出一条 JSON 消息
type Sender interface {
	Send(msg any) error
}

// Recognizers 为会话创建识别器
type Recognizers interface {
	StartRecognition(ctx context.Context, sessionID, language string) speech.Recognition
}

// Options 会话可选项
type Options struct {
	// Translator 为空时不做会话内翻译
	Translator         translation.Translator
	Credential         string
	TranslationTimeout time.Duration
	// StopTimeout 等待识别器收尾的上限
	StopTimeout time.Duration
	Metrics     *observe.Metrics
	InboxSize   int
}

const (
	defaultLanguage    = "en"
	defaultStopTimeout = 10 * time.Second
)

// Session 一个 WebSocket 连接对应的识别会话。
// 所有状态变更与出站消息都在 Run 的事件循环中完成。
type Session struct {
	id          string
	sender      Sender
	recognizers Recognizers
	opts        Options
	logger      *log.Logger

	state     atomic.Int32
	inbox     chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	// 以下字段只在事件循环中访问
	language string
	rec      speech.Recognition
	events   <-chan speech.Event
	sink     speech.AudioSink
	queue    *TranslationQueue
}

// NewSession 创建会话，调用 Run 后开始处理消息
func NewSession(parent context.Context, id string, sender Sender, recognizers Recognizers, opts Options) *Session {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:          id,
		sender:      sender,
		recognizers: recognizers,
		opts:        opts,
		logger:      log.WithPrefix("relay").With("session", id),
		inbox:       make(chan []byte, opts.InboxSize),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		language:    defaultLanguage,
	}
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// State 当前状态
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	if s.State() == StateClosed {
		return
	}
	s.state.Store(int32(st))
}

// Done 事件循环退出后关闭
func (s *Session) Done() <-chan struct{} { return s.done }

// Post 投递一条客户端原始消息；会话关闭后返回 false
func (s *Session) Post(data []byte) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.inbox <- data:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Close 结束会话，可重复调用
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.cancel()
	})
}

// Run 事件循环，直到会话关闭
func (s *Session) Run() {
	defer close(s.done)
	defer s.teardown()

	if s.opts.Translator != nil {
		s.queue = NewTranslationQueue(s.ctx, s.opts.Translator, s.opts.Credential, s.opts.TranslationTimeout)
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.inbox:
			s.handleInbound(data)
		case ev, ok := <-s.events:
			if !ok {
				s.recognitionEnded()
				continue
			}
			s.handleEvent(ev)
		case msg := <-s.queue.Results():
			s.send(msg)
		}
	}
}

func (s *Session) teardown() {
	s.Close()
	s.releaseRecognizer()
	s.queue.Close()
	s.logger.Info("session closed")
}

func (s *Session) handleInbound(data []byte) {
	msg, err := relaymodel.ParseInbound(data)
	if err != nil {
		s.logger.Warn("invalid client message", "err", err)
		return
	}

	switch msg.Type {
	case relaymodel.TypeStart:
		s.start(msg.Language)
	case relaymodel.TypeAudio:
		s.forwardAudio(msg.Audio)
	case relaymodel.TypeCommit:
		s.commit()
	default:
		s.logger.Warn("ignored message type", "type", msg.Type)
	}
}

func (s *Session) start(language string) {
	if language == "" {
		language = defaultLanguage
	}
	s.language = language

	// 先停掉已有识别器，避免遗留的识别流
	s.releaseRecognizer()

	if s.recognizers == nil {
		s.send(relaymodel.NewError("Failed to start speech recognition: speech recognition is not configured"))
		s.setState(StateIdle)
		return
	}

	rec := s.recognizers.StartRecognition(s.ctx, s.id, language)
	s.rec = rec
	s.events = rec.Events()
	s.sink = rec.Sink()
	s.setState(StateRecognizing)
	s.logger.Info("recognition requested", "language", language, "locale", speech.LocaleFor(language))
}

func (s *Session) forwardAudio(frame string) {
	pcm, err := audio.DecodeFrame(frame)
	if err != nil {
		s.logger.Warn("dropping undecodable audio frame", "err", err)
		s.opts.Metrics.RecordDroppedFrame(s.ctx, "decode")
		return
	}
	if s.sink == nil {
		s.logger.Debug("dropping audio frame without active sink", "state", s.State())
		s.opts.Metrics.RecordDroppedFrame(s.ctx, "no_sink")
		return
	}

	if err := s.sink.Write(pcm); err != nil {
		reason := "closed"
		if errors.Is(err, speech.ErrSinkFull) {
			reason = "buffer_full"
		}
		s.logger.Warn("dropping audio frame", "reason", reason, "err", err)
		s.opts.Metrics.RecordDroppedFrame(s.ctx, reason)
		return
	}
	s.opts.Metrics.RecordAudio(s.ctx, len(pcm))
}

// commit 结束音频输入，识别器收尾期间仍转发剩余结果
func (s *Session) commit() {
	if s.rec == nil || s.State() != StateRecognizing {
		s.logger.Debug("commit ignored", "state", s.State())
		return
	}

	if s.sink != nil {
		s.sink.Close()
		s.sink = nil
	}
	s.setState(StateCommitting)

	rec := s.rec
	timeout := s.opts.StopTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := rec.Stop(ctx); err != nil {
			s.logger.Warn("recognizer stop timed out", "err", err)
		}
	}()
}

// recognitionEnded 当前识别器的事件流结束，回到空闲
func (s *Session) recognitionEnded() {
	if s.sink != nil {
		s.sink.Close()
	}
	s.rec, s.events, s.sink = nil, nil, nil
	s.setState(StateIdle)
	s.logger.Debug("recognition ended")
}

// releaseRecognizer 放弃当前识别器：后台停止并排空其事件，不再转发
func (s *Session) releaseRecognizer() {
	if s.rec == nil {
		return
	}
	rec, events := s.rec, s.events
	if s.sink != nil {
		s.sink.Close()
	}
	s.rec, s.events, s.sink = nil, nil, nil

	timeout := s.opts.StopTimeout
	go func() {
		for range events {
		}
	}()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := rec.Stop(ctx); err != nil {
			s.logger.Debug("released recognizer stop", "err", err)
		}
	}()
}

func (s *Session) handleEvent(ev speech.Event) {
	s.opts.Metrics.RecordRecognizerEvent(s.ctx, ev.Kind.String())

	switch ev.Kind {
	case speech.EventReady:
		s.send(relaymodel.NewReady())
	case speech.EventPartial:
		s.send(relaymodel.NewTranscript(ev.Text, true))
	case speech.EventFinal:
		s.send(relaymodel.NewTranscript(ev.Text, false))
		s.enqueueTranslation(ev.Text)
	case speech.EventNoSpeech:
		s.send(relaymodel.NewError(speech.NoSpeechMessage))
	case speech.EventFailure:
		s.send(relaymodel.NewError(ev.Reason))
	}
}

func (s *Session) enqueueTranslation(text string) {
	if s.queue == nil {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	source, target := TranslationDirection(s.language)
	if !s.queue.Enqueue(text, source, target) {
		s.logger.Warn("translation queue closed, final not translated")
		return
	}
	s.logger.Debug("final queued for translation", "from", source, "to", target, "pending", s.queue.Len())
}

// TranslationDirection 日语会话译为英语，其余译为日语
func TranslationDirection(language string) (string, string) {
	if language == "ja" {
		return "ja", "en"
	}
	return "en", "ja"
}

// send 会话关闭后不再投递；写失败视为连接已断开
func (s *Session) send(msg any) {
	if s.ctx.Err() != nil {
		return
	}
	if err := s.sender.Send(msg); err != nil {
		s.logger.Warn("send failed, closing session", "err", err)
		s.Close()
	}
}
