package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chloebot/chloe/config"
	"github.com/chloebot/chloe/errors"
	"github.com/chloebot/chloe/server"
	"github.com/chloebot/chloe/server/completion"
	"github.com/chloebot/chloe/server/cooldown"
	"github.com/chloebot/chloe/server/extract"
	"github.com/chloebot/chloe/server/gateway"
	"github.com/chloebot/chloe/server/messaging"
	"github.com/chloebot/chloe/server/metrics"
)

const configPath = "config.yaml"

func main() {
	// Secrets come from the environment; a .env file is a convenience for
	// local runs and its absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.LoadDefault(configPath)
	if err != nil {
		fmt.Printf("Critical error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Critical error: Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Warning: Failed to sync logger: %v\n", syncErr)
		}
	}()

	// Set global logger
	errors.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics()

	messenger := messaging.NewSlackMessenger(cfg.Slack.BotToken, logger)
	extractor := extract.NewPDFExtractor(messenger, logger)

	cooldowns := cooldown.NewTracker(cfg.Cooldown.Window, logger)
	cooldowns.StartSweeper(ctx, cfg.Cooldown.SweepInterval, cfg.Cooldown.MaxIdleWindows)

	client := completion.NewClient(cfg.Completion, logger, m)
	if counter, err := completion.NewTokenCounter(cfg.Completion.Model); err != nil {
		// Token accounting is observability only, never a reason not to start.
		logger.Warn("Token counting disabled", zap.Error(err))
	} else {
		client.SetTokenizer(counter)
	}

	watchRuntimeConfig(ctx, logger, client, cooldowns)

	handler := gateway.NewHandler(messenger, client, extractor, cooldowns, m, logger)
	router := server.NewRouter(handler, cfg.Slack.EventsPath, m, logger)
	srv := server.NewServer(cfg.Server, router)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Shutdown signal received",
			zap.String("signal", sig.String()),
			zap.String("action", "initiating graceful shutdown"),
		)
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "text" {
		zapCfg.Encoding = "console"
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

// watchRuntimeConfig reloads config.yaml on change and applies the settings
// that are safe to swap at runtime. Server listen settings still need a
// restart.
func watchRuntimeConfig(ctx context.Context, logger *zap.Logger, client *completion.Client, cooldowns *cooldown.Tracker) {
	if _, err := os.Stat(configPath); err != nil {
		logger.Info("No config file to watch, hot reload disabled")
		return
	}

	watcher, err := config.NewConfigWatcher(configPath, logger)
	if err != nil {
		logger.Warn("Config watching disabled", zap.Error(err))
		return
	}

	updates := watcher.Subscribe()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-updates:
				client.Reconfigure(cfg.Completion)
				cooldowns.SetWindow(cfg.Cooldown.Window)
				logger.Info("Runtime configuration applied",
					zap.String("model", cfg.Completion.Model),
					zap.Duration("cooldown_window", cfg.Cooldown.Window),
				)
			}
		}
	}()
}
