package token

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voicelab/voice-widget/backend/internal/config"
	"github.com/voicelab/voice-widget/backend/internal/fault"
	"github.com/voicelab/voice-widget/backend/internal/service/ratelimit"
	tokensvc "github.com/voicelab/voice-widget/backend/internal/service/token"
	"github.com/voicelab/voice-widget/backend/pkg/utils"
)

// Handler 凭证签发的HTTP处理器
type Handler struct {
	issuer  *tokensvc.Issuer
	limiter *ratelimit.Limiter
	cfg     config.LiveKitConfig
}

// New 创建凭证处理器
func New(issuer *tokensvc.Issuer, limiter *ratelimit.Limiter, cfg config.LiveKitConfig) *Handler {
	return &Handler{issuer: issuer, limiter: limiter, cfg: cfg}
}

// RegisterRoutes 注册凭证相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/token", h.handleIssue)
	r.Get("/token", h.handleHealth)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	res := h.limiter.Check(utils.ClientKey(r))
	utils.SetRateLimitHeaders(w, h.limiter.Limit(), res.Remaining, res.ResetIn)
	if !res.Allowed {
		utils.SetRetryAfter(w, res.ResetIn)
		utils.RespondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "too many token requests",
			"retryAfter": int(res.ResetIn.Round(time.Second).Seconds()),
		})
		return
	}

	var payload struct {
		RoomName        string `json:"roomName"`
		ParticipantName string `json:"participantName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, err := h.issuer.Issue(r.Context(), payload.RoomName, payload.ParticipantName)
	if err != nil {
		h.respondIssueError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"token":           cred.Token,
		"url":             cred.URL,
		"expiresIn":       int(cred.ExpiresIn.Seconds()),
		"roomName":        payload.RoomName,
		"participantName": payload.ParticipantName,
	})
}

func (h *Handler) respondIssueError(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case fault.KindValidation:
			utils.RespondError(w, http.StatusBadRequest, fe.Message)
			return
		case fault.KindConfig:
			utils.RespondError(w, http.StatusInternalServerError, fe.Message)
			return
		}
	}
	utils.RespondError(w, http.StatusInternalServerError, "failed to issue credential")
}

// handleHealth 报告凭证服务的配置状态，供部署探活使用。
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !h.cfg.Configured() {
		status = "misconfigured"
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"livekit": map[string]any{
			"configured":  h.cfg.Configured(),
			"url":         h.cfg.URL != "",
			"credentials": h.cfg.HasCredentials(),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
