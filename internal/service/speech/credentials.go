package speech

import (
	"fmt"
	"strings"

	speechmodel "github.com/zhouzirui/live-interpreter/backend/internal/model/speech"
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("火山引擎语音配置未初始化")
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return "", "", fmt.Errorf("火山引擎语音配置缺少 AppID 或 AccessToken")
	}

	return appID, token, nil
}

// resolveDeepgramKey 返回 Deepgram API Key
func resolveDeepgramKey(cfg *speechmodel.SpeechConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("deepgram 配置未初始化")
	}
	key := strings.TrimSpace(cfg.DeepgramAPIKey)
	if key == "" {
		return "", fmt.Errorf("deepgram 配置缺少 API Key")
	}
	return key, nil
}
