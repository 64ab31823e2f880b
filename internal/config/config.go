package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Speech     SpeechConfig
	Translator TranslatorConfig
	AI         AIConfig
	Relay      RelayConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	translator, err := loadTranslatorConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Speech: speech, Translator: translator, AI: ai, Relay: relay}, nil
}

// Validate 在开始接受连接之前检查配置，返回需要提示给运维的警告。
// 警告不会阻止启动：缺少凭证的功能会在运行时降级。
func (c *Config) Validate() []string {
	var warnings []string

	switch c.Speech.Provider {
	case SpeechProviderVolcengine:
		if !c.Speech.Enabled {
			warnings = append(warnings, "speech recognition disabled: SPEECH_APP_ID and SPEECH_ACCESS_TOKEN are required for volcengine")
		}
	case SpeechProviderDeepgram:
		if !c.Speech.Enabled {
			warnings = append(warnings, "speech recognition disabled: DEEPGRAM_API_KEY is required for deepgram")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown SPEECH_PROVIDER %q, speech recognition disabled", c.Speech.Provider))
	}

	switch c.Translator.Variant {
	case TranslatorVariantLegacy:
		if c.Translator.Key == "" {
			warnings = append(warnings, "TRANSLATOR_KEY not set: /api/translate requires subscription_key in each request")
		}
		if c.Translator.Region == "" {
			warnings = append(warnings, "TRANSLATOR_REGION not set: multi-service translator keys will be rejected upstream")
		}
	case TranslatorVariantPreview:
		if c.Translator.Key == "" {
			warnings = append(warnings, "TRANSLATOR_KEY not set: /api/translate requires subscription_key in each request")
		}
		if c.Translator.Endpoint == "" {
			warnings = append(warnings, "TRANSLATOR_ENDPOINT not set: preview translation needs a resource endpoint")
		}
	case TranslatorVariantLLM:
		if !c.AI.Enabled() {
			warnings = append(warnings, "translator variant llm selected but Ark credentials or Model are missing")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown TRANSLATOR_VARIANT %q", c.Translator.Variant))
	}

	if c.Relay.TranslateFinals && !c.TranslatorConfigured() {
		warnings = append(warnings, "RELAY_TRANSLATE_FINALS enabled but no translator is configured, finals will not be translated")
	}

	return warnings
}

// TranslatorConfigured 表示服务端是否持有可直接使用的翻译凭证。
func (c *Config) TranslatorConfigured() bool {
	switch c.Translator.Variant {
	case TranslatorVariantLLM:
		return c.AI.Enabled()
	case TranslatorVariantLegacy:
		return c.Translator.Key != ""
	case TranslatorVariantPreview:
		return c.Translator.Key != "" && c.Translator.Endpoint != ""
	default:
		return false
	}
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	LogLevel       string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	cfg := ServerConfig{
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// 支持的语音识别引擎
const (
	SpeechProviderVolcengine = "volcengine"
	SpeechProviderDeepgram   = "deepgram"
)

// SpeechConfig 描述语音识别引擎相关配置
type SpeechConfig struct {
	Provider       string
	AppID          string
	AccessToken    string
	ConcurrentMode bool
	BaseURL        string
	ASRModel       string
	DeepgramAPIKey string
	DeepgramModel  string
	Timeout        int
	Enabled        bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("SPEECH_PROVIDER", SpeechProviderVolcengine))

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		// 兼容旧配置
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}
	deepgramKey := strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY"))

	var enabled bool
	switch provider {
	case SpeechProviderVolcengine:
		enabled = appID != "" && accessToken != ""
	case SpeechProviderDeepgram:
		enabled = deepgramKey != ""
	}

	return SpeechConfig{
		Provider:       provider,
		AppID:          appID,
		AccessToken:    accessToken,
		ConcurrentMode: concurrent,
		BaseURL:        getEnvOrDefault("SPEECH_BASE_URL", ""),
		ASRModel:       getEnvOrDefault("SPEECH_ASR_MODEL", "bigmodel"),
		DeepgramAPIKey: deepgramKey,
		DeepgramModel:  getEnvOrDefault("DEEPGRAM_MODEL", "nova-3"),
		Timeout:        timeoutSeconds,
		Enabled:        enabled,
	}, nil
}

// 翻译后端变体
const (
	TranslatorVariantLegacy  = "legacy"
	TranslatorVariantPreview = "preview"
	TranslatorVariantLLM     = "llm"
)

// TranslatorConfig 描述机器翻译后端配置
type TranslatorConfig struct {
	Variant    string
	Endpoint   string
	Key        string
	Region     string
	APIVersion string
	Timeout    time.Duration
}

func loadTranslatorConfig() (TranslatorConfig, error) {
	timeout, err := parseDurationEnv("TRANSLATOR_TIMEOUT", 10*time.Second)
	if err != nil {
		return TranslatorConfig{}, err
	}

	variant := strings.ToLower(getEnvOrDefault("TRANSLATOR_VARIANT", TranslatorVariantPreview))

	endpoint := strings.TrimSpace(os.Getenv("TRANSLATOR_ENDPOINT"))
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("AZURE_TRANSLATOR_ENDPOINT"))
	}
	if endpoint == "" && variant == TranslatorVariantLegacy {
		endpoint = "https://api.cognitive.microsofttranslator.com"
	}

	key := strings.TrimSpace(os.Getenv("TRANSLATOR_KEY"))
	if key == "" {
		key = strings.TrimSpace(os.Getenv("AZURE_TRANSLATOR_KEY"))
	}

	apiVersion := "2025-10-01-preview"
	if variant == TranslatorVariantLegacy {
		apiVersion = "3.0"
	}

	return TranslatorConfig{
		Variant:    variant,
		Endpoint:   endpoint,
		Key:        key,
		Region:     getEnvOrDefault("TRANSLATOR_REGION", strings.TrimSpace(os.Getenv("AZURE_LOCATION"))),
		APIVersion: getEnvOrDefault("TRANSLATOR_API_VERSION", apiVersion),
		Timeout:    timeout,
	}, nil
}

// AIConfig 描述大模型翻译相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// RelayConfig 描述实时中继会话的行为
type RelayConfig struct {
	TranslateFinals    bool
	StopTimeout        time.Duration
	PingInterval       time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	TranslationTimeout time.Duration
	AudioBuffer        int
}

func loadRelayConfig() (RelayConfig, error) {
	translateFinals, err := parseBoolEnv("RELAY_TRANSLATE_FINALS", false)
	if err != nil {
		return RelayConfig{}, err
	}

	cfg := RelayConfig{TranslateFinals: translateFinals, AudioBuffer: 256}

	durations := []struct {
		key    string
		def    time.Duration
		target *time.Duration
	}{
		{"RELAY_STOP_TIMEOUT", 10 * time.Second, &cfg.StopTimeout},
		{"RELAY_PING_INTERVAL", 54 * time.Second, &cfg.PingInterval},
		{"RELAY_READ_TIMEOUT", 60 * time.Second, &cfg.ReadTimeout},
		{"RELAY_WRITE_TIMEOUT", 10 * time.Second, &cfg.WriteTimeout},
		{"RELAY_TRANSLATION_TIMEOUT", 15 * time.Second, &cfg.TranslationTimeout},
	}
	for _, d := range durations {
		val, err := parseDurationEnv(d.key, d.def)
		if err != nil {
			return RelayConfig{}, err
		}
		*d.target = val
	}

	if buffer, err := parseOptionalIntEnv("RELAY_AUDIO_BUFFER"); err != nil {
		return RelayConfig{}, err
	} else if buffer != nil && *buffer > 0 {
		cfg.AudioBuffer = *buffer
	}

	if cfg.PingInterval >= cfg.ReadTimeout {
		return RelayConfig{}, fmt.Errorf("RELAY_PING_INTERVAL (%s) must be shorter than RELAY_READ_TIMEOUT (%s)", cfg.PingInterval, cfg.ReadTimeout)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
