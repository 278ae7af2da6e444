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

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	analysis "github.com/zhouzirui/idolchat/internal/analysis/emotion"
	"github.com/zhouzirui/idolchat/internal/config"
	"github.com/zhouzirui/idolchat/internal/handler"
	"github.com/zhouzirui/idolchat/internal/history"
	"github.com/zhouzirui/idolchat/internal/logging"
	"github.com/zhouzirui/idolchat/internal/model/persona"
	"github.com/zhouzirui/idolchat/internal/service/ai"
	emotionservice "github.com/zhouzirui/idolchat/internal/service/emotion"
	"github.com/zhouzirui/idolchat/internal/service/idol"
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

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("backend stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	personaStore, err := loadPersonas(cfg.PersonaFile)
	if err != nil {
		return err
	}

	store, err := history.Open(ctx, history.Options{
		Driver:    cfg.Backend.HistoryDriver,
		Path:      cfg.Backend.HistoryPath,
		RedisAddr: cfg.History.RedisAddr,
		RedisPass: cfg.History.RedisPassword,
		RedisDB:   cfg.History.RedisDB,
		KeyPrefix: "idolchat:backend:",
		Retention: cfg.Backend.Retention(),
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		responder idol.Responder = idol.EchoResponder{}
		chatModel model.ChatModel
	)
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			logger.Warn("failed to initialize chat model, replies fall back to echo", zap.Error(err))
		} else if aiService, err := ai.NewService(ctx, chatModel, cfg.Backend.MaxMemories, logger); err != nil {
			logger.Warn("failed to initialize AI service, replies fall back to echo", zap.Error(err))
		} else {
			responder = aiService
			logger.Info("AI service initialized", zap.String("model", cfg.AI.Model))
		}
	} else {
		logger.Info("Ark credentials not configured, replies use echo")
	}

	emotionCfg := emotionservice.Config{
		Enabled:      cfg.AI.EmotionLLMEnabled,
		HistoryLimit: cfg.AI.EmotionHistoryLimit,
	}
	emotionSvc, err := emotionservice.NewService(ctx, chatModel, emotionCfg, logger)
	if err != nil {
		return err
	}
	if emotionSvc.Enabled() {
		logger.Info("emotion classifier enabled")
	} else if emotionCfg.Enabled {
		logger.Info("emotion classifier requested but chat model unavailable, falling back to heuristics")
	}

	engine := emotionservice.NewEngine(analysis.Neutral, cfg.Backend.DecayRate,
		emotionservice.WithFSM(emotionservice.NewFSM(nil)))

	svc, err := idol.NewService(idol.Deps{
		Store:       store,
		Personas:    personaStore,
		Responder:   responder,
		Labeler:     emotionSvc,
		Engine:      engine,
		MaxMemories: cfg.Backend.MaxMemories,
		Retention:   cfg.Backend.Retention(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	go svc.RunRetention(ctx, time.Hour)

	router := handler.NewBackendRouter(personaStore, svc, cfg.Backend.AllowedOrigins)
	srv := &http.Server{
		Addr:              cfg.Backend.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("idol chat backend listening",
		zap.String("addr", cfg.Backend.Addr),
		zap.Int("memory_expiry_days", cfg.Backend.MemoryExpiryDays),
		zap.String("persona", svc.Persona().Name))
	return runServer(ctx, srv)
}

func loadPersonas(path string) (persona.Store, error) {
	if path == "" {
		return persona.NewMemoryStore(persona.Seed()), nil
	}
	items, err := persona.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return persona.NewMemoryStore(items), nil
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
