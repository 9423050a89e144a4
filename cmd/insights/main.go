package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/medscope/telegram-insights/internal/analytics"
	"github.com/medscope/telegram-insights/internal/api"
	"github.com/medscope/telegram-insights/internal/config"
	"github.com/medscope/telegram-insights/internal/loader"
	"github.com/medscope/telegram-insights/internal/notifications"
	"github.com/medscope/telegram-insights/internal/pipeline"
	"github.com/medscope/telegram-insights/internal/scheduler"
	"github.com/medscope/telegram-insights/internal/scraper"
	"github.com/medscope/telegram-insights/internal/storage"
	"github.com/medscope/telegram-insights/internal/warehouse"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Telegram Insights")

	// Connect to the warehouse
	pool, err := warehouse.New(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to warehouse: %v", err)
	}
	defer pool.Close()

	// Initialize the Azure data lake
	lake, err := storage.NewAzureLake(cfg.StorageAccount, cfg.StorageContainer)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize notification service
	notificationService := notifications.NewService(cfg)

	// Initialize pipeline components
	source := scraper.NewTelegramSource(cfg.TelegramBotToken)
	messageLoader := loader.NewMessageLoader(lake, pool)
	detectionLoader := loader.NewDetectionLoader(lake, pool)
	pipelineService := pipeline.NewService(cfg, lake, source,
		messageLoader, detectionLoader, pool, notificationService)

	// Initialize analytics
	analyticsService := analytics.New(pool)

	// Start scheduler
	schedulerService := scheduler.NewService(cfg, pipelineService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Set up HTTP server
	apiServer := api.NewServer(analyticsService, pipelineService, pool)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
