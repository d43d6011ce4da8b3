package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/voicelab/voice-widget/backend/internal/fault"
	"github.com/voicelab/voice-widget/backend/internal/httpc"
	speechmodel "github.com/voicelab/voice-widget/backend/internal/model/speech"
)

// TTSClient 调用 OpenAI 兼容的 /audio/speech 端点进行语音合成。
type TTSClient struct {
	config *speechmodel.SpeechConfig
	client *http.Client
}

// NewTTSClient 创建语音合成客户端。
func NewTTSClient(config *speechmodel.SpeechConfig) *TTSClient {
	return &TTSClient{
		config: config,
		client: httpc.NewClient(time.Duration(config.Timeout) * time.Second),
	}
}

// Synthesize 将文本合成为 MP3 音频。
func (c *TTSClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	apiKey, baseURL, err := resolveCredentials(c.config)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfig, "speech credentials", err)
	}

	voice := req.Voice
	if voice == "" {
		voice = c.config.TTSVoice
	}
	speed := req.Speed
	if speed == 0 {
		speed = c.config.TTSSpeed
	}

	payload := map[string]any{
		"model": c.config.TTSModel,
		"voice": voice,
		"input": req.Text,
	}
	if speed != 0 && speed != 1.0 {
		payload["speed"] = speed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesis request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fault.Wrap(fault.KindNetwork, "synthesis request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(parseAPIError("tts", resp))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindNetwork, "read synthesis response", err)
	}

	log.Printf("[tts] synthesized request=%s chars=%d bytes=%d latency=%s",
		req.RequestID, len(req.Text), len(audio), time.Since(start).Round(time.Millisecond))

	return &speechmodel.TTSResponse{
		RequestID: req.RequestID,
		AudioData: audio,
		MimeType:  "audio/mpeg",
		CreatedAt: time.Now().UTC(),
	}, nil
}
