package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/suPer8Hu/finchat/internal/app"
	"github.com/suPer8Hu/finchat/internal/config"
	"github.com/suPer8Hu/finchat/internal/httpapi"
	"github.com/suPer8Hu/finchat/internal/httpapi/handlers"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open backend", zap.Error(err))
	}
	defer backend.Close()

	// the memory index starts empty; build it from whatever is stored
	job, err := backend.Service.CreateIndexJob(ctx)
	if err != nil {
		logger.Fatal("create startup index job", zap.Error(err))
	}
	if err := backend.Service.RunIndexJob(ctx, job.ID); err != nil {
		logger.Warn("startup index build failed", zap.Error(err))
	}

	var publisher handlers.RefreshPublisher
	if cfg.RabbitURL != "" {
		if err := app.RequireSharedIndex(cfg); err != nil {
			logger.Fatal("refresh queue", zap.Error(err))
		}
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Fatal("rabbit publisher", zap.Error(err))
		}
		defer p.Close()
		publisher = p
		logger.Info("index refresh queued via rabbitmq", zap.String("queue", cfg.RabbitQueue))
	}

	gin.SetMode(gin.ReleaseMode)
	h := handlers.NewHandler(backend.Service, publisher, logger)
	r := httpapi.NewRouter(h, logger, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("provider", cfg.AIProvider),
			zap.String("index", cfg.IndexBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
