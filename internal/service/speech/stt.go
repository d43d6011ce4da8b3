package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voicelab/voice-widget/backend/internal/fault"
	"github.com/voicelab/voice-widget/backend/internal/httpc"
	speechmodel "github.com/voicelab/voice-widget/backend/internal/model/speech"
)

// STTClient 调用 OpenAI 兼容的 /audio/transcriptions 端点进行语音识别。
type STTClient struct {
	config *speechmodel.SpeechConfig
	client *http.Client
}

// NewSTTClient 创建语音识别客户端。
func NewSTTClient(config *speechmodel.SpeechConfig) *STTClient {
	return &STTClient{
		config: config,
		client: httpc.NewClient(time.Duration(config.Timeout) * time.Second),
	}
}

// Transcribe 识别一段完整音频。空音频视为静音，直接返回空文本。
func (c *STTClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if len(req.AudioData) == 0 {
		return &speechmodel.ASRResponse{
			RequestID: req.RequestID,
			Text:      "",
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	apiKey, baseURL, err := resolveCredentials(c.config)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfig, "speech credentials", err)
	}

	format := req.Format
	if format == "" {
		format = "wav"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.AudioData); err != nil {
		return nil, fmt.Errorf("write audio payload: %w", err)
	}
	if err := writer.WriteField("model", c.config.STTModel); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("create transcription request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fault.Wrap(fault.KindNetwork, "transcription request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(parseAPIError("stt", resp))
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	log.Printf("[stt] transcribed request=%s bytes=%d chars=%d latency=%s",
		req.RequestID, len(req.AudioData), len(payload.Text), time.Since(start).Round(time.Millisecond))

	return &speechmodel.ASRResponse{
		RequestID: req.RequestID,
		Text:      payload.Text,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// parseAPIError drains an error response into a structured APIError.
func parseAPIError(provider string, resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Provider: provider}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		apiErr.Message = resp.Status
		return apiErr
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
	} else {
		apiErr.Message = string(raw)
	}
	return apiErr
}
