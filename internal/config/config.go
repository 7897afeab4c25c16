package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ChatContextWindowSize int

	// AI provider
	AIProvider        string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// retrieval index: "memory" or "redis"
	IndexBackend string
	IndexTopK    int

	// rabbitMQ; an empty RabbitURL makes refresh synchronous
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	// CORS origins allowed to call the API; "*" allows any.
	AllowedOrigins []string

	LogLevel string
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	APIBaseURL     string
	HistoryBaseURL string

	// Storage is "file", "redis" or "memory".
	Storage     string
	StoragePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogFile string
}

func Load() Config {
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/finchat?charset=utf8mb4&parseTime=true&loc=Local
	// sqlite:./data/finchat.db
	dsn := getEnv("DB_DSN", "sqlite:./data/finchat.db")

	windowSize := getEnvInt("CHAT_CONTEXT_WINDOW_SIZE", 20)
	topK := getEnvInt("INDEX_TOP_K", 3)
	if topK < 0 {
		topK = 3
	}

	concurrency := getEnvInt("WORKER_CONCURRENCY", 1)
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > 50 {
		concurrency = 50
	}

	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		DBDSN:    dsn,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ChatContextWindowSize: windowSize,

		AIProvider:        strings.ToLower(getEnv("AI_PROVIDER", "ollama")),
		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		IndexBackend: strings.ToLower(getEnv("INDEX_BACKEND", "memory")),
		IndexTopK:    topK,

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       getEnv("RABBIT_QUEUE", "index_refresh"),
		WorkerConcurrency: concurrency,

		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func LoadClient() ClientConfig {
	apiBase := getEnv("CHAT_API_BASE_URL", "http://localhost:8080")

	storagePath := os.Getenv("CHAT_STORAGE_PATH")
	if storagePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		storagePath = filepath.Join(dir, "finchat", "client.yaml")
	}

	return ClientConfig{
		APIBaseURL:     apiBase,
		// empty means "same as APIBaseURL", resolved after flags are parsed
		HistoryBaseURL: os.Getenv("CHAT_HISTORY_BASE_URL"),

		Storage:     strings.ToLower(getEnv("CHAT_STORAGE", "file")),
		StoragePath: storagePath,

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogFile: os.Getenv("CHAT_LOG_FILE"),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
