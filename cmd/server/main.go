package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/donbattle/optcg-server-go/internal/cards"
	"github.com/donbattle/optcg-server-go/internal/config"
	"github.com/donbattle/optcg-server-go/internal/session"
	"github.com/donbattle/optcg-server-go/internal/transport/wsrelay"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting OPTCG server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	store, err := loadCards(ctx, cfg.Cards, logger)
	if err != nil {
		logger.Fatal("failed to load card definitions", zap.Error(err))
	}
	logger.Info("card store initialized",
		zap.String("source", cfg.Cards.Source),
		zap.Int("cards", store.Len()),
	)

	sessionMgr := session.NewManager(store, session.OptionsFromConfig(cfg.Game), logger)
	logger.Info("session manager initialized",
		zap.Duration("prompt_timeout", cfg.Game.PromptTimeout),
		zap.Bool("restrict_first_turn_attacks", cfg.Game.RestrictFirstTurnAttacks),
	)

	hub := wsrelay.NewHub(sessionMgr, wsrelay.OptionsFromConfig(cfg.Server.WebSocket), logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.WebSocket.Address,
		Handler:           newRouter(cfg.Server.WebSocket.Path, hub, sessionMgr, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting WebSocket server",
			zap.String("address", cfg.Server.WebSocket.Address),
			zap.String("path", cfg.Server.WebSocket.Path),
		)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("WebSocket server error", zap.Error(serveErr))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}

	// Pending prompts resolve as declined so running battles finish
	sessionMgr.CloseAll()
	hub.Close()

	logger.Info("OPTCG server stopped")
}

// newRouter serves the relay at wsPath and a health endpoint. Panics in
// handlers are logged and answered with 500.
func newRouter(wsPath string, hub *wsrelay.Hub, sessions *session.Manager, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(wsPath, hub)
	mux.Handle("/healthz", handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  "ok",
				"games":   len(sessions.IDs()),
				"clients": hub.ClientCount(),
			})
		}),
	})
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger)),
		handlers.PrintRecoveryStack(true),
	)(mux)
}

// loadCards fills a card store from the configured source.
func loadCards(ctx context.Context, cfg config.CardsConfig, logger *zap.Logger) (*cards.Store, error) {
	store := cards.NewStore(logger)

	var src cards.Source
	switch cfg.Source {
	case "postgres":
		pg, err := cards.NewPostgresSource(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		defer pg.Close()
		pg.Table = cfg.Table
		src = pg
	default:
		src = cards.FileSource{Path: cfg.Path}
	}

	if err := store.Load(ctx, src); err != nil {
		return nil, err
	}
	return store, nil
}
