package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-call-bot-go/internal/api"
	"crypto-call-bot-go/internal/binance"
	"crypto-call-bot-go/internal/command"
	"crypto-call-bot-go/internal/config"
	"crypto-call-bot-go/internal/database"
	"crypto-call-bot-go/internal/logger"
	"crypto-call-bot-go/internal/market"
	"crypto-call-bot-go/internal/monitor"
	"crypto-call-bot-go/internal/notify"
	"crypto-call-bot-go/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Check the Binance API before accepting calls
	restClient := binance.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(ctx); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	registry := market.NewRegistry()
	registry.Register(binance.ExchangeName, func() (market.Provider, error) {
		return binance.NewProvider(&cfg.Binance, binance.NewRestClient(&cfg.Binance, log), log), nil
	})

	// Telegram posts the call events when enabled, otherwise they are only logged
	var (
		notifier monitor.Notifier = notify.NewLog(log)
		botAPI   *tgbotapi.BotAPI
	)
	if cfg.Telegram.Enabled {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Fatal("Failed to connect to Telegram", zap.Error(err))
		}
		log.Info("Authorized on Telegram", zap.String("account", botAPI.Self.UserName))
		notifier = notify.NewTelegram(botAPI, cfg.Telegram, log)
	}

	callMonitor, err := monitor.NewMonitor(cfg.Monitor, registry, store.NewCallStore(db, log), notifier, log)
	if err != nil {
		log.Fatal("Invalid monitor configuration", zap.Error(err))
	}
	if err := callMonitor.Initialize(ctx); err != nil {
		log.Fatal("Failed to restore open calls", zap.Error(err))
	}

	var apiServer *api.Server
	if cfg.API.Port > 0 {
		apiServer = api.NewServer(cfg.API, callMonitor, log)
		apiServer.Start()
	}

	if botAPI != nil {
		go command.NewBot(botAPI, callMonitor, cfg.Telegram, log).Run(ctx)
	}

	log.Info("Call monitor is running")
	<-ctx.Done()

	if apiServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Warn("Failed to stop API server", zap.Error(err))
		}
		stop()
	}
	if err := callMonitor.Stop(); err != nil {
		log.Warn("Failed to stop the call monitor cleanly", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
