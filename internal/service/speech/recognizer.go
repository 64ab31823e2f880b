package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	// ErrSinkClosed 音频输入已结束（commit 或停止之后）
	ErrSinkClosed = errors.New("audio sink closed")
	// ErrSinkFull 引擎消费跟不上，丢弃该帧
	ErrSinkFull = errors.New("audio sink buffer full")
)

// AudioSink 识别器的音频推流句柄，与识别器一一绑定
type AudioSink interface {
	Write(pcm []byte) error
	Close() error
}

// Recognition 会话持有的识别器句柄。
// Events 在识别会话结束后关闭；Stop 结束音频输入并等待引擎收尾。
type Recognition interface {
	Events() <-chan Event
	Sink() AudioSink
	Stop(ctx context.Context) error
}

// Recognizer 把引擎的原始回调归一化为 Event，并通过 channel 投递
type Recognizer struct {
	engine Engine
	cfg    StreamConfig
	logger *log.Logger

	events chan Event
	audio  chan []byte

	sinkMu     sync.Mutex
	sinkClosed bool
	sinkDone   chan struct{}

	startOnce sync.Once
	abortOnce sync.Once
	abort     chan struct{}
	done      chan struct{}
}

// NewRecognizer 创建识别器，调用 Start 之后才会连接引擎
func NewRecognizer(engine Engine, cfg StreamConfig, audioBuffer int) *Recognizer {
	if audioBuffer <= 0 {
		audioBuffer = 256
	}
	return &Recognizer{
		engine:   engine,
		cfg:      cfg,
		logger:   log.WithPrefix("speech"),
		events:   make(chan Event, 64),
		audio:    make(chan []byte, audioBuffer),
		sinkDone: make(chan struct{}),
		abort:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 异步连接引擎。连接失败以 EventFailure 的形式投递，不会返回错误。
func (r *Recognizer) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.run(ctx)
	})
}

// Events 返回事件通道
func (r *Recognizer) Events() <-chan Event { return r.events }

// Sink 返回推流句柄
func (r *Recognizer) Sink() AudioSink { return pushStream{r: r} }

// Stop 关闭音频输入并等待引擎结束；ctx 到期后强制终止并返回 ctx 错误。
func (r *Recognizer) Stop(ctx context.Context) error {
	r.closeSink()

	// 从未启动的识别器直接视为已结束
	r.startOnce.Do(func() {
		close(r.events)
		close(r.done)
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.abortOnce.Do(func() { close(r.abort) })
		return ctx.Err()
	}
}

func (r *Recognizer) closeSink() {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	if !r.sinkClosed {
		r.sinkClosed = true
		close(r.sinkDone)
	}
}

type pushStream struct {
	r *Recognizer
}

func (p pushStream) Write(pcm []byte) error {
	p.r.sinkMu.Lock()
	defer p.r.sinkMu.Unlock()
	if p.r.sinkClosed {
		return ErrSinkClosed
	}

	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)
	select {
	case p.r.audio <- chunk:
		return nil
	default:
		return ErrSinkFull
	}
}

func (p pushStream) Close() error {
	p.r.closeSink()
	return nil
}

func (r *Recognizer) run(ctx context.Context) {
	defer close(r.done)
	defer close(r.events)

	stream, err := r.engine.Open(ctx, r.cfg)
	if err != nil {
		r.logger.Error("engine open failed", "engine", r.engine.Name(), "session", r.cfg.SessionID, "err", err)
		r.emit(Event{Kind: EventFailure, Reason: "Failed to start speech recognition: " + err.Error()})
		return
	}
	defer stream.Close()

	r.logger.Info("recognition started", "engine", r.engine.Name(), "session", r.cfg.SessionID, "locale", r.cfg.Locale)
	go r.pump(ctx, stream)

	ready := false
	results := stream.Results()
	for {
		select {
		case res, ok := <-results:
			if !ok {
				r.logger.Debug("engine results closed", "session", r.cfg.SessionID)
				return
			}
			if r.dispatch(res, &ready) {
				r.logger.Info("recognition stopped", "session", r.cfg.SessionID)
				return
			}
		case <-r.abort:
			return
		case <-ctx.Done():
			return
		}
	}
}

// dispatch 归一化一条引擎结果，返回 true 表示引擎会话已结束
func (r *Recognizer) dispatch(res EngineResult, ready *bool) bool {
	switch res.Reason {
	case ReasonSessionStarted:
		if !*ready {
			*ready = true
			r.emit(Event{Kind: EventReady})
		}
	case ReasonRecognizing:
		if res.Text != "" {
			r.emit(Event{Kind: EventPartial, Text: res.Text})
		}
	case ReasonRecognized:
		r.emit(Event{Kind: EventFinal, Text: res.Text})
	case ReasonNoMatch:
		r.emit(Event{Kind: EventNoSpeech})
	case ReasonCanceled:
		reason := res.ErrorDetails
		if reason == "" {
			reason = "speech recognition canceled"
		}
		r.emit(Event{Kind: EventFailure, Reason: reason})
	case ReasonSessionStopped:
		return true
	}
	return false
}

func (r *Recognizer) emit(ev Event) {
	select {
	case r.events <- ev:
	case <-r.abort:
	}
}

// pump 把推流缓冲里的音频写给引擎；推流关闭后排空缓冲再发送结束标记
func (r *Recognizer) pump(ctx context.Context, stream EngineStream) {
	for {
		select {
		case pcm := <-r.audio:
			if err := stream.Write(pcm); err != nil {
				r.logger.Warn("write audio to engine failed", "session", r.cfg.SessionID, "err", err)
				return
			}
		case <-r.sinkDone:
			for {
				select {
				case pcm := <-r.audio:
					if err := stream.Write(pcm); err != nil {
						r.logger.Warn("flush audio to engine failed", "session", r.cfg.SessionID, "err", err)
						return
					}
				default:
					if err := stream.CloseWrite(); err != nil {
						r.logger.Warn("close engine input failed", "session", r.cfg.SessionID, "err", err)
					}
					return
				}
			}
		case <-r.abort:
			return
		case <-r.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
