package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kiddychat/chat-server-go/internal/config"
	"github.com/kiddychat/chat-server-go/internal/handler"
	"github.com/kiddychat/chat-server-go/internal/jobs"
	"github.com/kiddychat/chat-server-go/internal/llm"
	"github.com/kiddychat/chat-server-go/internal/middleware"
	"github.com/kiddychat/chat-server-go/internal/moderation"
	"github.com/kiddychat/chat-server-go/internal/service"
	"github.com/kiddychat/chat-server-go/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Local development convenience; in deployment the env is already set.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	policy := moderation.DefaultPolicy()
	sessions := store.NewSessionStore(policy.DefaultSystemPrompt(), cfg.SessionTTL(), nil)

	backend, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ModelName,
		Timeout: cfg.ModelTimeout(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize model backend")
	}
	log.Info().Str("model", cfg.ModelName).Msg("model backend ready")

	chatService := service.NewChatService(sessions, policy, backend)

	authMiddleware := middleware.NewSessionAuthMiddleware(sessions)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	sessionHandler := handler.NewSessionHandler(chatService)
	chatHandler := handler.NewChatHandler(chatService)
	policyHandler := handler.NewPolicyHandler(chatService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Post("/initiate-session", sessionHandler.InitiateSession)
	r.Get("/filter-info", policyHandler.GetFilterInfo)
	r.Get("/sessions/active", policyHandler.GetActiveSessions)
	r.Get("/conversation-starters", policyHandler.GetConversationStarters)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Post("/query", chatHandler.Query)
		r.Mount("/session", sessionHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(sessions, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
