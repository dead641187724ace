package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-trading-sim-go/internal/auth"
	"stock-trading-sim-go/internal/config"
	"stock-trading-sim-go/internal/database"
	"stock-trading-sim-go/internal/logger"
	"stock-trading-sim-go/internal/portfolio"
	"stock-trading-sim-go/internal/quotes"
	"stock-trading-sim-go/internal/server"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Wire collaborators
	quoteClient := quotes.NewClient(&cfg.Quotes, log.Named("quotes"))
	tradeStore := portfolio.NewGormTradeStore(db)
	engine := portfolio.NewEngine(tradeStore, quoteClient, log.Named("portfolio"))
	authService := auth.NewService(db, time.Duration(cfg.Auth.SessionTTLHours)*time.Hour, log.Named("auth"))

	srv := server.New(cfg.Server.Port, server.Deps{
		Auth:   authService,
		Engine: engine,
		Quotes: quoteClient,
		DB:     db,
	}, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	go func() {
		<-ctx.Done()
		if err := srv.Stop(context.Background()); err != nil {
			log.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}
