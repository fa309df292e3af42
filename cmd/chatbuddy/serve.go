package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/server"
	"github.com/avvvet/chatbuddy/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and NATS service",
	Long: `Starts the chat engine behind the HTTP API. When nats_url is set the
engine also answers chat and retrain requests on NATS and publishes retrain
events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("🚀 starting chatbuddy service...", zap.String("service", cfg.ServiceName))

		a, err := newApp(cfg, logger)
		if err != nil {
			logger.Error("❌ failed to initialise", zap.Error(err))
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.loadModel(ctx, false); err != nil {
			return err
		}

		go a.sessions.Run(ctx, cfg.SessionSweepInterval)

		if cfg.WatchIntents {
			w := catalog.NewWatcher(cfg.IntentsDir, a.catalogs, func(*catalog.Catalog) {
				if _, err := a.coordinator.Retrain(ctx, false); err != nil {
					logger.Warn("⚠️ retrain after reload not started", zap.Error(err))
				}
			}, logger)
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Error("❌ intents watcher stopped", zap.Error(err))
				}
			}()
		}

		if cfg.NatsURL != "" {
			logger.Info("📡 connecting to NATS...")
			nt, err := transport.NewNATSTransport(cfg, a.chat, a.coordinator, logger)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, nt.Close)
			a.events.Add(nt)

			if err := nt.Start(); err != nil {
				return err
			}
		}

		srv := server.New(server.Config{
			Addr:           cfg.APIAddr(),
			RequestTimeout: cfg.RequestTimeout,
			HealthChecks:   a.health,
		}, a.chat, a.keys, a.audit, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		logger.Info("✅ chatbuddy service is running!",
			zap.String("api", cfg.APIAddr()),
			zap.String("model", cfg.ModelType),
			zap.Int("active_sessions", a.sessions.GetActiveSessionCount()))

		select {
		case <-ctx.Done():
			logger.Info("🛑 received shutdown signal")
		case err := <-errCh:
			if err != nil {
				logger.Error("❌ HTTP server failed", zap.Error(err))
				return err
			}
		}

		logger.Info("🔄 shutting down gracefully...",
			zap.Int("active_sessions", a.sessions.GetActiveSessionCount()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("⚠️ error shutting down HTTP server", zap.Error(err))
		}

		logger.Info("👋 chatbuddy service stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
