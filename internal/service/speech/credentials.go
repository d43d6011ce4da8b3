package speech

import (
	"fmt"
	"strings"

	speechmodel "github.com/voicelab/voice-widget/backend/internal/model/speech"
)

// resolveCredentials 返回规范化后的 APIKey 与 BaseURL，缺失时给出明确错误。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("语音服务配置未初始化")
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	if apiKey == "" {
		return "", "", fmt.Errorf("语音服务配置缺少 APIKey")
	}
	if baseURL == "" {
		return "", "", fmt.Errorf("语音服务配置缺少 BaseURL")
	}

	return apiKey, baseURL, nil
}
