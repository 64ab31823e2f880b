// Package relay 定义实时识别 WebSocket 的消息格式
package relay

import "encoding/json"

// 客户端 → 服务端
const (
	TypeStart  = "start"
	TypeAudio  = "audio"
	TypeCommit = "commit"
)

// 服务端 → 客户端
const (
	TypeReady       = "ready"
	TypeTranscript  = "transcript"
	TypeTranslation = "translation"
	TypeError       = "error"
	TypeConfig      = "config"
)

// InboundMessage 客户端消息，按 Type 使用对应字段
type InboundMessage struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// ParseInbound 解析一条客户端文本消息
func ParseInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// ReadyMessage 识别会话已建立
type ReadyMessage struct {
	Type string `json:"type"`
}

// TranscriptMessage 识别结果
type TranscriptMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	IsPartial bool   `json:"isPartial"`
}

// TranslationMessage 最终识别结果的翻译，按识别顺序下发
type TranslationMessage struct {
	Type       string `json:"type"`
	SourceText string `json:"sourceText"`
	Text       string `json:"text"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
	Error      string `json:"error,omitempty"`
}

// ErrorMessage 面向用户的错误提示
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ConfigMessage 连接建立后下发一次
type ConfigMessage struct {
	Type                 string `json:"type"`
	TranslatorConfigured bool   `json:"translatorConfigured"`
}

// NewReady 构造 ready 消息
func NewReady() ReadyMessage { return ReadyMessage{Type: TypeReady} }

// NewTranscript 构造 transcript 消息
func NewTranscript(text string, partial bool) TranscriptMessage {
	return TranscriptMessage{Type: TypeTranscript, Text: text, IsPartial: partial}
}

// NewError 构造 error 消息
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// NewConfig 构造 config 消息
func NewConfig(translatorConfigured bool) ConfigMessage {
	return ConfigMessage{Type: TypeConfig, TranslatorConfigured: translatorConfigured}
}
