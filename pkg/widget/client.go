package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voicelab/voice-widget/backend/internal/fault"
	"github.com/voicelab/voice-widget/backend/internal/httpc"
)

// Credential is the session credential returned by the token endpoint.
type Credential struct {
	Token     string `json:"token"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}

// TokenClient requests session credentials.
type TokenClient interface {
	Issue(ctx context.Context, roomName, participantName string) (*Credential, error)
}

// ChatResult is the pipeline outcome surfaced to the widget.
type ChatResult struct {
	Transcription string
	Text          string
	AudioDataURI  string
}

// PipelineClient submits captured audio to the speech pipeline.
type PipelineClient interface {
	Process(ctx context.Context, audioDataURI string) (*ChatResult, error)
}

// APIClient talks to the widget backend over HTTP. It implements both
// TokenClient and PipelineClient.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient 创建后端 API 客户端。
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(timeout),
	}
}

// Issue requests a session credential from POST /api/token.
func (c *APIClient) Issue(ctx context.Context, roomName, participantName string) (*Credential, error) {
	body, err := json.Marshal(map[string]string{
		"roomName":        roomName,
		"participantName": participantName,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	resp, err := c.post(ctx, "/api/token", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.asFault(resp)
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &cred, nil
}

// Process submits one utterance to POST /api/chat.
func (c *APIClient) Process(ctx context.Context, audioDataURI string) (*ChatResult, error) {
	body, err := json.Marshal(map[string]string{"audioDataUri": audioDataURI})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.asFault(resp)
	}

	var payload struct {
		Transcription string `json:"transcription"`
		AIResponse    struct {
			Text         string `json:"text"`
			AudioDataURI string `json:"audioDataUri"`
		} `json:"aiResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}

	return &ChatResult{
		Transcription: payload.Transcription,
		Text:          payload.AIResponse.Text,
		AudioDataURI:  payload.AIResponse.AudioDataURI,
	}, nil
}

func (c *APIClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindNetwork, "backend unreachable", err)
	}
	return resp, nil
}

// asFault converts an error response into the classified taxonomy the
// controller branches on. Both local rate limiting and upstream quota
// exhaustion arrive as 429 and trigger the same backoff path.
func (c *APIClient) asFault(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := resp.Status
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := time.Duration(0)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			wait = time.Duration(secs) * time.Second
		}
		return &fault.Error{Kind: fault.KindQuota, Message: message, RetryAfter: wait}
	case resp.StatusCode == http.StatusBadRequest:
		return fault.Validation(message)
	case resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fault.New(fault.KindNetwork, message)
	default:
		return fault.New(fault.KindUnknown, message)
	}
}
