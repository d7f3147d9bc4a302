package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shadowlanes/recr-monkey/internal/config"
	"github.com/shadowlanes/recr-monkey/internal/events"
	"github.com/shadowlanes/recr-monkey/internal/rates"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting rates-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	provider := rates.NewHTTPProvider(cfg.RatesURL)
	rateCache := rates.NewCache(provider, cfg.RatesTTL)

	// AMQP publisher for rates.refreshed notifications
	var publisher *events.Client
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, refreshes will not be announced", "error", err)
		} else {
			publisher = client
			defer publisher.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - refreshes will not be announced")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresh := func(now time.Time) {
		snap, err := rateCache.Refresh(ctx)
		if err != nil {
			logger.Error("Rate refresh failed", "error", err, "url", cfg.RatesURL)
			return
		}
		logger.Info("Rate refresh complete",
			"currencies", len(snap.Rates),
			"expires_at", snap.ExpiresAt,
			"next_refresh", now.Add(cfg.RatesRefreshInterval).Format("15:04:05"))
		if err := publisher.PublishRatesRefreshed(ctx, len(snap.Rates), snap.FetchedAt); err != nil {
			logger.Warn("Failed to announce rate refresh", "error", err)
		}
	}

	logger.Info("Rates worker configured",
		"interval", cfg.RatesRefreshInterval,
		"ttl", cfg.RatesTTL,
		"url", cfg.RatesURL)

	ticker := time.NewTicker(cfg.RatesRefreshInterval)
	defer ticker.Stop()

	// Run initial refresh on startup
	logger.Info("Running initial rate refresh...")
	refresh(time.Now())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				refresh(now)
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()
	logger.Info("Rates-worker shutdown complete")
}
