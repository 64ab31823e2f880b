package speech

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	speechmodel "github.com/zhouzirui/live-interpreter/backend/internal/model/speech"
	"github.com/zhouzirui/live-interpreter/backend/pkg/audio"
)

// Service 语音识别服务，为每次 start 创建一个识别器
type Service struct {
	engine      Engine
	audioBuffer int
	logger      *log.Logger
}

// NewService 根据配置选择识别引擎
func NewService(config *speechmodel.SpeechConfig) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("语音配置未初始化")
	}

	var engine Engine
	switch config.Provider {
	case "", "volcengine":
		if _, _, err := resolveCredentials(config); err != nil {
			return nil, err
		}
		engine = NewVolcengineEngine(config)
	case "deepgram":
		if _, err := resolveDeepgramKey(config); err != nil {
			return nil, err
		}
		engine = NewDeepgramEngine(config)
	default:
		return nil, fmt.Errorf("unknown speech provider %q", config.Provider)
	}
	return NewServiceWithEngine(engine, config.AudioBuffer), nil
}

// NewServiceWithEngine 使用指定引擎创建服务
func NewServiceWithEngine(engine Engine, audioBuffer int) *Service {
	return &Service{
		engine:      engine,
		audioBuffer: audioBuffer,
		logger:      log.WithPrefix("speech"),
	}
}

// EngineName 当前引擎名称
func (s *Service) EngineName() string {
	return s.engine.Name()
}

// StartRecognition 按客户端语言创建并启动识别器。
// 连接在后台建立，结果通过 Events 投递。
func (s *Service) StartRecognition(ctx context.Context, sessionID, language string) Recognition {
	cfg := StreamConfig{
		SessionID:  sessionID,
		Locale:     LocaleFor(language),
		SampleRate: audio.SampleRate,
		Bits:       audio.BitsPerSample,
		Channels:   audio.Channels,
	}
	s.logger.Debug("starting recognizer", "session", sessionID, "locale", cfg.Locale, "engine", s.engine.Name())

	r := NewRecognizer(s.engine, cfg, s.audioBuffer)
	r.Start(ctx)
	return r
}
