package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Queue    QueueConfig
	Ingest   IngestConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Backend   string // "s3" or "fs"
	Bucket    string
	Region    string
	Endpoint  string // MinIO or other S3-compatible endpoint
	AccessKey string
	SecretKey string
	Dir       string // root for the fs backend
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider     string // "openai" or "gemini"
	OpenAIKey    string
	OpenAIModel  string
	OpenAIURL    string
	GeminiKey    string
	GeminiModel  string
	Temperature  float32
	Timeout      time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	LenientInput bool
}

// PipelineConfig holds per-stage tuning.
type PipelineConfig struct {
	MaxFileMB       int
	TargetImageKB   int
	MaxImageWidth   int
	MaxImageHeight  int
	RasterScale     float64
	RasterMaxPages  int
	RasterMode      string // single, multi or long
	DefaultCurrency string
}

// QueueConfig configures the background worker pool.
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

// IngestConfig configures the optional watch folder and mailbox poller.
type IngestConfig struct {
	WatchDir string
	Debounce time.Duration
	UserID   string

	IMAPHost         string
	IMAPPort         int
	IMAPSecure       bool
	IMAPUser         string
	IMAPPassword     string
	IMAPFolder       string
	IMAPMarkSeen     bool
	IMAPMaxMessages  int
	IMAPPollInterval time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "s3")),
			Bucket:    getEnv("S3_BUCKET", "invoices"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Dir:       getEnv("STORAGE_DIR", "./tmp/objects"),
		},
		LLM: LLMConfig{
			Provider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIURL:    getEnv("OPENAI_BASE_URL", ""),
			GeminiKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			Temperature:  getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:      getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			MaxAttempts:  getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			RetryDelay:   getEnvAsDuration("LLM_RETRY_DELAY", 2*time.Second),
			LenientInput: getEnvAsBool("LLM_LENIENT", true),
		},
		Pipeline: PipelineConfig{
			MaxFileMB:       getEnvAsInt("MAX_FILE_MB", 10),
			TargetImageKB:   getEnvAsInt("TARGET_IMAGE_KB", 1024),
			MaxImageWidth:   getEnvAsInt("MAX_IMAGE_WIDTH", 2048),
			MaxImageHeight:  getEnvAsInt("MAX_IMAGE_HEIGHT", 2048),
			RasterScale:     getEnvAsFloat64("RASTER_SCALE", 2.0),
			RasterMaxPages:  getEnvAsInt("RASTER_MAX_PAGES", 3),
			RasterMode:      strings.ToLower(getEnv("RASTER_MODE", "single")),
			DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "AUD")),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 3*time.Minute),
		},
		Ingest: IngestConfig{
			WatchDir: getEnv("WATCH_DIR", ""),
			Debounce: getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
			UserID:   getEnv("WATCH_USER_ID", ""),

			IMAPHost:         getEnv("IMAP_HOST", ""),
			IMAPPort:         getEnvAsInt("IMAP_PORT", 993),
			IMAPSecure:       getEnvAsBool("IMAP_SECURE", true),
			IMAPUser:         getEnv("IMAP_USER", ""),
			IMAPPassword:     getEnv("IMAP_PASSWORD", ""),
			IMAPFolder:       getEnv("IMAP_FOLDER", "INBOX"),
			IMAPMarkSeen:     getEnvAsBool("IMAP_MARK_SEEN", true),
			IMAPMaxMessages:  getEnvAsInt("IMAP_MAX_MESSAGES", 50),
			IMAPPollInterval: getEnvAsDuration("IMAP_POLL_INTERVAL", 5*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration for the daemon.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError(CodeConfigError, "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError(CodeConfigError, "GRPC_ADDR is required", ErrInvalidInput)
	}
	if err := c.ValidateLLM(); err != nil {
		return err
	}
	return c.ValidateStorage()
}

// ValidateLLM checks that the selected provider has credentials.
func (c *Config) ValidateLLM() error {
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return NewAppError(CodeConfigError, "OPENAI_API_KEY is required", ErrInvalidInput)
		}
	case "gemini":
		if c.LLM.GeminiKey == "" {
			return NewAppError(CodeConfigError, "GEMINI_API_KEY is required", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfigError, "LLM_PROVIDER must be openai or gemini", ErrInvalidInput)
	}
	if c.LLM.MaxAttempts < 1 {
		return NewAppError(CodeConfigError, "LLM_MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	return nil
}

// ValidateStorage checks the object store settings.
func (c *Config) ValidateStorage() error {
	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			return NewAppError(CodeConfigError, "S3_BUCKET is required", ErrInvalidInput)
		}
	case "fs":
		if c.Storage.Dir == "" {
			return NewAppError(CodeConfigError, "STORAGE_DIR is required", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfigError, "STORAGE_BACKEND must be s3 or fs", ErrInvalidInput)
	}
	return nil
}

// MaxFileBytes is the ingestion size limit in bytes.
func (p PipelineConfig) MaxFileBytes() int64 {
	if p.MaxFileMB <= 0 {
		return 0
	}
	return int64(p.MaxFileMB) * 1024 * 1024
}
