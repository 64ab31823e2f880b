package speech

import "time"

// SpeechConfig 语音识别引擎配置
type SpeechConfig struct {
	Provider string `json:"provider"` // volcengine | deepgram

	// Volcengine 配置
	AppID          string `json:"appId"`          // 火山引擎 APP ID
	AccessToken    string `json:"accessToken"`    // 火山引擎 Access Token
	ConcurrentMode bool   `json:"concurrentMode"` // ASR并发模式（false为小时版）
	BaseURL        string `json:"baseUrl"`        // 覆盖默认的识别端点
	ASRModel       string `json:"asrModel"`

	// Deepgram 配置
	DeepgramAPIKey  string `json:"deepgramApiKey"`
	DeepgramModel   string `json:"deepgramModel"`
	DeepgramBaseURL string `json:"deepgramBaseUrl"`

	// 通用配置
	Timeout     time.Duration `json:"timeout"`     // 建连超时
	MaxRetries  int           `json:"maxRetries"`  // 建连重试次数
	AudioBuffer int           `json:"audioBuffer"` // 推流缓冲的帧数
}
