package speech

import (
	"context"

	speechmodel "github.com/voicelab/voice-widget/backend/internal/model/speech"
)

// Service 语音服务核心业务逻辑
type Service struct {
	config    *speechmodel.SpeechConfig
	sttClient *STTClient
	ttsClient *TTSClient
}

// NewService 创建语音服务实例
func NewService(config *speechmodel.SpeechConfig) *Service {
	return &Service{
		config:    config,
		sttClient: NewSTTClient(config),
		ttsClient: NewTTSClient(config),
	}
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	return s.sttClient.Transcribe(ctx, req)
}

// SynthesizeSpeech 文字转语音
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	return s.ttsClient.Synthesize(ctx, req)
}

// Transcribe 识别字节数组音频，返回文本。空文本代表静音，不是错误。
func (s *Service) Transcribe(ctx context.Context, requestID string, audioData []byte, format string) (string, error) {
	resp, err := s.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		RequestID: requestID,
		AudioData: audioData,
		Format:    format,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Synthesize 合成文本，返回音频字节与 MIME 类型。
func (s *Service) Synthesize(ctx context.Context, requestID, text string) ([]byte, string, error) {
	resp, err := s.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		RequestID: requestID,
		Text:      text,
	})
	if err != nil {
		return nil, "", err
	}
	return resp.AudioData, resp.MimeType, nil
}
