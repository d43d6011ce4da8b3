package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voicelab/voice-widget/backend/internal/fault"
	chatmodel "github.com/voicelab/voice-widget/backend/internal/model/chat"
	"github.com/voicelab/voice-widget/backend/internal/service/pipeline"
	"github.com/voicelab/voice-widget/backend/internal/service/ratelimit"
	"github.com/voicelab/voice-widget/backend/pkg/utils"
)

// Pipeline 抽象语音流水线，便于测试与替换实现
type Pipeline interface {
	Process(ctx context.Context, audioDataURI string) (*pipeline.Result, error)
}

// Handler 语音聊天的HTTP处理器
type Handler struct {
	pipe    Pipeline
	limiter *ratelimit.Limiter
	timeout time.Duration
}

// New 创建聊天处理器。timeout 限制单次流水线调用的总时长。
func New(pipe Pipeline, limiter *ratelimit.Limiter, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{pipe: pipe, limiter: limiter, timeout: timeout}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	res := h.limiter.Check(utils.ClientKey(r))
	utils.SetRateLimitHeaders(w, h.limiter.Limit(), res.Remaining, res.ResetIn)
	if !res.Allowed {
		utils.SetRetryAfter(w, res.ResetIn)
		utils.RespondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "too many chat requests",
			"retryAfter": int(res.ResetIn.Round(time.Second).Seconds()),
		})
		return
	}

	var payload chatmodel.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.AudioDataURI == "" {
		utils.RespondError(w, http.StatusBadRequest, "audioDataUri is required")
		return
	}

	if h.pipe == nil {
		utils.RespondError(w, http.StatusInternalServerError, "speech pipeline not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.pipe.Process(ctx, payload.AudioDataURI)
	if err != nil {
		h.respondPipelineError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatmodel.Response{
		Transcription: result.Transcription,
		AIResponse: chatmodel.AIResponse{
			Text:         result.ResponseText,
			AudioDataURI: result.ResponseAudioDataURI,
		},
	})
}

// respondPipelineError maps the fault taxonomy onto HTTP statuses. Upstream
// quota exhaustion shares the 429 status with local rate limiting but keeps
// its own message so clients can tell the two apart.
func (h *Handler) respondPipelineError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		utils.RespondError(w, http.StatusGatewayTimeout, "speech pipeline timed out")
		return
	}

	switch fault.KindOf(err) {
	case fault.KindValidation:
		msg := "invalid audio input"
		var fe *fault.Error
		if errors.As(err, &fe) {
			msg = fe.Message
		}
		utils.RespondError(w, http.StatusBadRequest, msg)
	case fault.KindQuota:
		if wait := fault.RetryAfterOf(err); wait > 0 {
			utils.SetRetryAfter(w, wait)
		}
		utils.RespondError(w, http.StatusTooManyRequests, "AI provider quota exceeded, please retry shortly")
	case fault.KindConfig:
		utils.RespondError(w, http.StatusInternalServerError, "speech pipeline misconfigured")
	case fault.KindNetwork:
		utils.RespondError(w, http.StatusServiceUnavailable, "AI provider unreachable, please retry")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "speech pipeline failed")
	}
}
