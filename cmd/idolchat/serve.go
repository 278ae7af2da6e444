package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/idolchat/internal/avatar"
	"github.com/zhouzirui/idolchat/internal/gateway"
	"github.com/zhouzirui/idolchat/internal/handler"
	"github.com/zhouzirui/idolchat/internal/history"
	"github.com/zhouzirui/idolchat/internal/service/session"
)

// serveCmd runs the client app server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the client app server (session API + avatar websocket)",
	Long: `Starts the HTTP server the chat UI talks to.

Routes:
  POST   /api/session                       login
  DELETE /api/session/{id}                  logout
  POST   /api/session/{id}/messages         submit a message
  GET    /api/session/{id}/transcript       current transcript and phase
  GET    /api/session/{id}/emotion          last emotion shown
  GET    /api/session/{id}/history          prior turns
  POST   /api/avatar/tracking               toggle camera tracking
  GET    /ws/avatar                         avatar renderer stream`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := avatar.NewHub(logger)
	defer hub.Close()

	manager := session.NewManager(session.Deps{
		Gateway:        newGateway(),
		Store:          store,
		Driver:         hub,
		Logger:         logger,
		RequestTimeout: cfg.Gateway.Timeout,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(manager, hub, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("idolchat client app listening",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.Gateway.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openHistory(ctx context.Context) (history.Store, error) {
	return history.Open(ctx, history.Options{
		Driver:    cfg.History.Driver,
		Path:      cfg.History.Path,
		RedisAddr: cfg.History.RedisAddr,
		RedisPass: cfg.History.RedisPassword,
		RedisDB:   cfg.History.RedisDB,
	}, logger)
}

func newGateway() *gateway.HTTPClient {
	return gateway.NewHTTPClient(gateway.Config{
		BaseURL:  cfg.Gateway.BaseURL,
		Platform: cfg.Gateway.Platform,
		Timeout:  cfg.Gateway.Timeout,
	}, nil, logger)
}
