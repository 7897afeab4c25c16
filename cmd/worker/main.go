package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/finchat/internal/app"
	"github.com/suPer8Hu/finchat/internal/config"
	"github.com/suPer8Hu/finchat/internal/store/rabbitmq"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.RabbitURL == "" {
		logger.Fatal("RABBIT_URL is required")
	}
	if err := app.RequireSharedIndex(cfg); err != nil {
		logger.Fatal("refresh queue", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open backend", zap.Error(err))
	}
	defer backend.Close()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("rabbit consumer", zap.Error(err))
	}
	defer consumer.Close()

	logger.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", cfg.WorkerConcurrency))

	if err := consumer.Run(ctx, backend.Service.RunIndexJob); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", zap.Error(err))
		return
	}
	logger.Info("worker shutting down")
}
