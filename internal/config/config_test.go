package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DB_DSN", "RABBIT_URL", "INDEX_BACKEND", "WORKER_CONCURRENCY", "AI_PROVIDER"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBDSN != "sqlite:./data/finchat.db" {
		t.Errorf("DBDSN = %q", cfg.DBDSN)
	}
	if cfg.RabbitURL != "" {
		t.Errorf("RabbitURL should default to empty, got %q", cfg.RabbitURL)
	}
	if cfg.IndexBackend != "memory" || cfg.AIProvider != "ollama" {
		t.Errorf("unexpected defaults: index=%q provider=%q", cfg.IndexBackend, cfg.AIProvider)
	}
	if cfg.WorkerConcurrency != 1 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "500")
	t.Setenv("CHAT_CONTEXT_WINDOW_SIZE", "not-a-number")
	t.Setenv("AI_PROVIDER", "OpenRouter")
	t.Setenv("INDEX_TOP_K", "5")

	cfg := Load()
	if cfg.WorkerConcurrency != 50 {
		t.Errorf("concurrency should be capped at 50, got %d", cfg.WorkerConcurrency)
	}
	if cfg.ChatContextWindowSize != 20 {
		t.Errorf("bad int should fall back, got %d", cfg.ChatContextWindowSize)
	}
	if cfg.AIProvider != "openrouter" {
		t.Errorf("AIProvider = %q", cfg.AIProvider)
	}
	if cfg.IndexTopK != 5 {
		t.Errorf("IndexTopK = %d", cfg.IndexTopK)
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("CHAT_API_BASE_URL", "http://api.example")
	t.Setenv("CHAT_HISTORY_BASE_URL", "")
	t.Setenv("CHAT_STORAGE", "Redis")
	t.Setenv("CHAT_STORAGE_PATH", "/tmp/finchat.yaml")

	cfg := LoadClient()
	if cfg.HistoryBaseURL != "" {
		t.Errorf("history base should stay unset so it follows the api base, got %q", cfg.HistoryBaseURL)
	}
	if cfg.Storage != "redis" {
		t.Errorf("Storage = %q", cfg.Storage)
	}
	if cfg.StoragePath != "/tmp/finchat.yaml" {
		t.Errorf("StoragePath = %q", cfg.StoragePath)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.example , ,http://b.example")

	cfg := Load()
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a.example" || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}
