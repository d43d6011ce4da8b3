package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voicelab/voice-widget/backend/internal/config"
	"github.com/voicelab/voice-widget/backend/internal/handler"
	speechmodel "github.com/voicelab/voice-widget/backend/internal/model/speech"
	"github.com/voicelab/voice-widget/backend/internal/service/ai"
	"github.com/voicelab/voice-widget/backend/internal/service/pipeline"
	"github.com/voicelab/voice-widget/backend/internal/service/ratelimit"
	"github.com/voicelab/voice-widget/backend/internal/service/speech"
	tokensvc "github.com/voicelab/voice-widget/backend/internal/service/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Rate limiters own their sweep goroutines; stopped on shutdown.
	chatLimiter := ratelimit.New(handler.ChatRateLimit, handler.RateWindow)
	tokenLimiter := ratelimit.New(handler.TokenRateLimit, handler.RateWindow)
	chatLimiter.StartSweep(5 * time.Minute)
	tokenLimiter.StartSweep(5 * time.Minute)
	defer chatLimiter.Stop()
	defer tokenLimiter.Stop()

	issuer := tokensvc.NewIssuer(cfg.LiveKit)
	if !cfg.LiveKit.Configured() {
		log.Println("warning: LiveKit credentials incomplete, token issuance will fail until configured")
	}

	// Initialize AI service
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	// Initialize Speech service
	var speechService *speech.Service
	if cfg.Speech.Enabled {
		speechService = speech.NewService(&speechmodel.SpeechConfig{
			APIKey:   cfg.Speech.APIKey,
			BaseURL:  cfg.Speech.BaseURL,
			STTModel: cfg.Speech.STTModel,
			TTSModel: cfg.Speech.TTSModel,
			TTSVoice: cfg.Speech.TTSVoice,
			TTSSpeed: cfg.Speech.TTSSpeed,
			Timeout:  cfg.Speech.Timeout,
		})
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("语音服务凭证未配置，跳过语音功能初始化")
	}

	orchestrator := pipeline.New(
		transcriberOrNil(speechService),
		responderOrNil(aiService),
		synthesizerOrNil(speechService),
	)

	router := handler.NewRouter(handler.Deps{
		LiveKit:      cfg.LiveKit,
		Issuer:       issuer,
		Pipeline:     orchestrator,
		ChatLimiter:  chatLimiter,
		TokenLimiter: tokenLimiter,
		ChatTimeout:  time.Duration(cfg.Speech.Timeout) * time.Second,
	})

	startServer(ctx, cfg.Server, router)
}

// The typed-nil dance: a nil *Service stored in an interface is not a nil
// interface, so the orchestrator's nil checks would pass and then panic.
func transcriberOrNil(svc *speech.Service) pipeline.Transcriber {
	if svc == nil {
		return nil
	}
	return svc
}

func responderOrNil(svc *ai.Service) pipeline.Responder {
	if svc == nil {
		return nil
	}
	return svc
}

func synthesizerOrNil(svc *speech.Service) pipeline.Synthesizer {
	if svc == nil {
		return nil
	}
	return svc
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voice widget backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
