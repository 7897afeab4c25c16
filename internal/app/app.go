// Package app wires configuration into the pieces shared by the server and
// the index worker.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/finchat/internal/ai"
	"github.com/suPer8Hu/finchat/internal/chat"
	"github.com/suPer8Hu/finchat/internal/config"
	"github.com/suPer8Hu/finchat/internal/db"
	"github.com/suPer8Hu/finchat/internal/index"
	"github.com/suPer8Hu/finchat/internal/store/redisstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const indexKeyPrefix = "finchat:index:"

func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// NewRegistry registers every provider the config knows about. Sessions pick
// one by name; an empty model means the provider's configured model.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	return reg
}

// RequireSharedIndex rejects setups where queued refreshes could never reach
// the serving index: the worker rebuilds in its own process, so the index has
// to live in Redis.
func RequireSharedIndex(cfg config.Config) error {
	if cfg.IndexBackend != "redis" {
		return fmt.Errorf("queued index refresh needs INDEX_BACKEND=redis, have %q", cfg.IndexBackend)
	}
	return nil
}

// Backend is the chat service together with the resources it owns.
type Backend struct {
	DB      *gorm.DB
	Redis   *redisstore.Store // nil unless the index lives in Redis
	Index   index.Index
	Service *chat.Service
}

// Open connects storage, migrates the schema and builds the chat service.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backend, error) {
	reg := NewRegistry(cfg)
	if !reg.Has(cfg.AIProvider) {
		return nil, fmt.Errorf("unsupported AI_PROVIDER=%q (have %s)", cfg.AIProvider, strings.Join(reg.Names(), ", "))
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := chat.Migrate(gdb); err != nil {
		closeDB(gdb)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	b := &Backend{DB: gdb}
	switch cfg.IndexBackend {
	case "", "memory":
		b.Index = index.NewMemory()
	case "redis":
		if cfg.RedisAddr == "" {
			closeDB(gdb)
			return nil, fmt.Errorf("INDEX_BACKEND=redis needs REDIS_ADDR")
		}
		b.Redis = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := b.Redis.Ping(pctx)
		cancel()
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.Index = index.NewRedis(b.Redis.Client(), indexKeyPrefix)
	default:
		closeDB(gdb)
		return nil, fmt.Errorf("unsupported INDEX_BACKEND=%q", cfg.IndexBackend)
	}

	b.Service = chat.NewService(chat.NewRepo(gdb), reg, b.Index, chat.Options{
		ContextWindowSize: cfg.ChatContextWindowSize,
		TopK:              cfg.IndexTopK,
		DefaultProvider:   cfg.AIProvider,
		Logger:            logger,
	})
	return b, nil
}

func (b *Backend) Close() {
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	closeDB(b.DB)
}

func closeDB(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
