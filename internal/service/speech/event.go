package speech

import "strings"

// EventKind 识别事件的封闭集合
type EventKind int

const (
	// EventReady 识别会话已建立，每个识别器至多一次
	EventReady EventKind = iota + 1
	// EventPartial 当前语句的中间结果，可能被后续结果覆盖
	EventPartial
	// EventFinal 一句话的最终结果
	EventFinal
	// EventNoSpeech 一段音频没有识别出语音
	EventNoSpeech
	// EventFailure 引擎报告取消或错误
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventNoSpeech:
		return "no_speech"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event 归一化后的识别事件。Text 仅用于 Partial/Final，Reason 仅用于 Failure。
type Event struct {
	Kind   EventKind
	Text   string
	Reason string
}

// NoSpeechMessage 无语音时下发给客户端的固定文案
const NoSpeechMessage = "No speech detected"

// LocaleFor 把客户端语言映射为识别区域设置："ja" 为日语，其余一律英语
func LocaleFor(language string) string {
	if strings.TrimSpace(language) == "ja" {
		return "ja-JP"
	}
	return "en-US"
}
