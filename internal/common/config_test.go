package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("MAX_FILE_MB", "")
	cfg := LoadConfig()
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.LLM.RetryDelay)
	assert.Equal(t, "AUD", cfg.Pipeline.DefaultCurrency)
	assert.Equal(t, int64(10*1024*1024), cfg.Pipeline.MaxFileBytes())
}

func TestLoadConfigMailbox(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_PORT", "143")
	t.Setenv("IMAP_SECURE", "false")
	t.Setenv("IMAP_FOLDER", "")
	t.Setenv("IMAP_POLL_INTERVAL", "30s")

	cfg := LoadConfig()
	assert.Equal(t, "imap.example.com", cfg.Ingest.IMAPHost)
	assert.Equal(t, 143, cfg.Ingest.IMAPPort)
	assert.False(t, cfg.Ingest.IMAPSecure)
	assert.Equal(t, "INBOX", cfg.Ingest.IMAPFolder)
	assert.Equal(t, 30*time.Second, cfg.Ingest.IMAPPollInterval)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("WORKERS", "9")
	t.Setenv("WATCH_DEBOUNCE", "2s")
	t.Setenv("RASTER_SCALE", "1.5")
	t.Setenv("LLM_LENIENT", "false")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("DEFAULT_CURRENCY", "nzd")

	cfg := LoadConfig()
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 9, cfg.Queue.Workers)
	assert.Equal(t, 2*time.Second, cfg.Ingest.Debounce)
	assert.Equal(t, 1.5, cfg.Pipeline.RasterScale)
	assert.False(t, cfg.LLM.LenientInput)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, "NZD", cfg.Pipeline.DefaultCurrency)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{DSN: "postgres://x"},
		Server:   ServerConfig{GRPCAddr: ":8080"},
		LLM:      LLMConfig{Provider: "openai", OpenAIKey: "k", MaxAttempts: 3},
		Storage:  StorageConfig{Backend: "s3", Bucket: "b"},
	}
	require.NoError(t, cfg.Validate())

	cfg.LLM.OpenAIKey = ""
	assert.True(t, IsCode(cfg.Validate(), CodeConfigError))

	cfg.LLM = LLMConfig{Provider: "gemini", GeminiKey: "g", MaxAttempts: 1}
	cfg.Storage = StorageConfig{Backend: "fs"}
	assert.Error(t, cfg.Validate())
	cfg.Storage.Dir = "/tmp/x"
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "ftp"
	assert.Error(t, cfg.ValidateStorage())
	cfg.LLM.Provider = "other"
	assert.Error(t, cfg.ValidateLLM())
}
