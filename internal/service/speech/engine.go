package speech

import (
	"context"
	"errors"
)

// ResultReason 引擎回调的种类，与具体识别后端无关
type ResultReason int

const (
	ReasonSessionStarted ResultReason = iota + 1
	ReasonRecognizing
	ReasonRecognized
	ReasonNoMatch
	ReasonCanceled
	ReasonSessionStopped
)

// EngineResult 引擎产生的一条原始结果
type EngineResult struct {
	Reason       ResultReason
	Text         string
	ErrorDetails string
}

// StreamConfig 打开识别流所需的参数
type StreamConfig struct {
	SessionID  string
	Locale     string
	SampleRate int
	Bits       int
	Channels   int
}

// Engine 语音识别后端，接收 PCM16 音频流
type Engine interface {
	Name() string
	Open(ctx context.Context, cfg StreamConfig) (EngineStream, error)
}

// EngineStream 一次打开的识别流。
// Results 在引擎会话结束后关闭；CloseWrite 表示音频结束但继续接收结果；
// Close 立即终止。
type EngineStream interface {
	Write(pcm []byte) error
	CloseWrite() error
	Results() <-chan EngineResult
	Close() error
}

// ErrStreamClosed 向已经结束的识别流写入音频
var ErrStreamClosed = errors.New("speech stream closed")
