package relay

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	relaymodel "github.com/zhouzirui/live-interpreter/backend/internal/model/relay"
	"github.com/zhouzirui/live-interpreter/backend/internal/service/translation"
)

type translationJob struct {
	text   string
	source string
	target string
}

// TranslationQueue 串行执行一个会话的翻译请求，结果按入队顺序输出。
// 单个请求慢不会让后续结果越过它。
type TranslationQueue struct {
	translator translation.Translator
	credential string
	timeout    time.Duration
	logger     *log.Logger

	mu      sync.Mutex
	pending []translationJob
	closed  bool
	notify  chan struct{}

	results chan relaymodel.TranslationMessage
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTranslationQueue 创建队列并启动工作协程
func NewTranslationQueue(parent context.Context, translator translation.Translator, credential string, timeout time.Duration) *TranslationQueue {
	ctx, cancel := context.WithCancel(parent)
	q := &TranslationQueue{
		translator: translator,
		credential: credential,
		timeout:    timeout,
		logger:     log.WithPrefix("relay"),
		notify:     make(chan struct{}, 1),
		results:    make(chan relaymodel.TranslationMessage, 16),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go q.work()
	return q
}

// Enqueue 追加一个翻译请求；队列关闭后返回 false
func (q *TranslationQueue) Enqueue(text, source, target string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, translationJob{text: text, source: source, target: target})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Results 翻译结果通道，nil 队列返回 nil（select 中永不就绪）
func (q *TranslationQueue) Results() <-chan relaymodel.TranslationMessage {
	if q == nil {
		return nil
	}
	return q.results
}

// Len 尚未开始处理的请求数
func (q *TranslationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close 取消进行中的请求并丢弃剩余请求，等待工作协程退出
func (q *TranslationQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	<-q.done
}

func (q *TranslationQueue) next() (translationJob, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			job := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return job, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.ctx.Done():
			return translationJob{}, false
		}
	}
}

func (q *TranslationQueue) work() {
	defer close(q.done)

	for {
		job, ok := q.next()
		if !ok {
			return
		}

		msg := q.translate(job)
		if q.ctx.Err() != nil {
			return
		}

		select {
		case q.results <- msg:
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *TranslationQueue) translate(job translationJob) relaymodel.TranslationMessage {
	ctx := q.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(q.ctx, q.timeout)
		defer cancel()
	}

	msg := relaymodel.TranslationMessage{
		Type:       relaymodel.TypeTranslation,
		SourceText: job.text,
		SourceLang: job.source,
		TargetLang: job.target,
	}
	res, err := q.translator.Translate(ctx, translation.Request{
		Text:       job.text,
		SourceLang: job.source,
		TargetLang: job.target,
		Credential: q.credential,
	})
	if err != nil {
		if q.ctx.Err() == nil {
			q.logger.Warn("translation failed", "source", job.source, "target", job.target, "err", err)
		}
		msg.Error = err.Error()
		return msg
	}
	msg.Text = res.Text
	return msg
}
