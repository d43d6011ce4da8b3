package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voicelab/voice-widget/backend/internal/config"
	chathandler "github.com/voicelab/voice-widget/backend/internal/handler/chat"
	tokenhandler "github.com/voicelab/voice-widget/backend/internal/handler/token"
	middlewarePkg "github.com/voicelab/voice-widget/backend/internal/middleware"
	"github.com/voicelab/voice-widget/backend/internal/service/ratelimit"
	tokensvc "github.com/voicelab/voice-widget/backend/internal/service/token"
)

// Per-window request ceilings. The chat endpoint is the expensive one; the
// token endpoint tolerates reconnect churn.
const (
	ChatRateLimit  = 10
	TokenRateLimit = 20
	RateWindow     = time.Minute
)

// Deps carries everything the router wires together.
type Deps struct {
	LiveKit      config.LiveKitConfig
	Issuer       *tokensvc.Issuer
	Pipeline     chathandler.Pipeline
	ChatLimiter  *ratelimit.Limiter
	TokenLimiter *ratelimit.Limiter
	ChatTimeout  time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	tokenHandler := tokenhandler.New(deps.Issuer, deps.TokenLimiter, deps.LiveKit)
	chatHandler := chathandler.New(deps.Pipeline, deps.ChatLimiter, deps.ChatTimeout)

	r.Route("/api", func(api chi.Router) {
		tokenHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
	})

	return r
}
