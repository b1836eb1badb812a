package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmiccafe/internal/advisor"
	"cosmiccafe/internal/api"
	"cosmiccafe/internal/config"
	"cosmiccafe/internal/game"
	"cosmiccafe/internal/store"

	"github.com/shopspring/decimal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	lenders, err := config.LoadLenders(cfg.LendersFile)
	if err != nil {
		logger.Error("load lenders failed", "err", err, "path", cfg.LendersFile)
		os.Exit(1)
	}

	var provider game.DecisionProvider = game.NewRuleProvider()
	if cfg.AdvisorURL != "" {
		provider = advisor.NewClient(cfg.AdvisorURL, cfg.AdvisorAPIKey, cfg.DecisionTimeout)
		logger.Info("using remote advisor", "url", cfg.AdvisorURL)
	}

	startMoney := decimal.NewFromFloat(cfg.StartMoney)
	startStock := decimal.NewFromFloat(cfg.StartStock)
	session, err := game.NewSession(game.Options{
		Lenders:         lenders,
		Provider:        provider,
		DecisionTimeout: cfg.DecisionTimeout,
		AccrualEvery:    cfg.AccrualEvery,
		StartMoney:      &startMoney,
		StartStock:      &startStock,
	}, logger)
	if err != nil {
		logger.Error("session init failed", "err", err)
		os.Exit(1)
	}
	session.Start()

	archive, err := store.Open(ctx, cfg.Archive)
	if err != nil {
		logger.Warn("archive unavailable, exports will not be kept", "kind", cfg.Archive.Kind, "err", err)
		archive = nil
	}
	if archive != nil {
		defer archive.Close()
	}

	server := api.New(cfg, logger, session, archive)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := session.Run(ctx, cfg.TickEvery); err != nil {
			logger.Error("accrual loop stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("cafe api listening", "addr", cfg.Addr, "session_id", session.ID(), "accrual_every", cfg.AccrualEvery.String())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}

	if archive != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		id, err := archive.SaveExport(saveCtx, session.Export())
		if err != nil {
			logger.Error("final export failed", "err", err)
			return
		}
		logger.Info("final export archived", "session_id", id)
	}
}
