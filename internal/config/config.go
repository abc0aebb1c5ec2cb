package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool

	// Worker pool
	WorkerCount  int
	JobTimeout   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration // base delay, doubled per attempt

	// Schedules (5-field cron expressions or "@every <duration>")
	CollectSchedule string
	AlertSchedule   string
	CleanupSchedule string
	ReportSchedule  string
	BackupSchedule  string

	// Collection and reporting
	CollectLookbackDays int
	ReportTopN          int
	SentimentBatchSize  int

	// External services
	MarketFeedURL    string
	OpenAIAPIKey     string
	TelegramBotToken string
	TelegramChatID   int64

	// Cloud backups (disabled unless all R2 fields are set)
	R2AccountEndpoint   string
	R2Bucket            string
	R2AccessKeyID       string
	R2SecretAccessKey   string
	BackupRetentionDays int
	BackupDir           string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/insight.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		WorkerCount:  getEnvAsInt("WORKER_COUNT", 4),
		JobTimeout:   time.Duration(getEnvAsInt("JOB_TIMEOUT_MINUTES", 30)) * time.Minute,
		MaxRetries:   getEnvAsInt("JOB_MAX_RETRIES", 3),
		RetryBackoff: time.Duration(getEnvAsInt("JOB_RETRY_BACKOFF_SECONDS", 60)) * time.Second,

		CollectSchedule: getEnv("MARKET_DATA_SCHEDULE", "0 22 * * *"),
		AlertSchedule:   getEnv("ALERT_CHECK_SCHEDULE", "*/15 14-21 * * 1-5"),
		CleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "0 2 * * *"),
		ReportSchedule:  getEnv("DAILY_REPORT_SCHEDULE", "30 22 * * *"),
		BackupSchedule:  getEnv("BACKUP_SCHEDULE", "0 1 * * *"),

		CollectLookbackDays: getEnvAsInt("COLLECT_LOOKBACK_DAYS", 5),
		ReportTopN:          getEnvAsInt("REPORT_TOP_N", 5),
		SentimentBatchSize:  getEnvAsInt("SENTIMENT_BATCH_SIZE", 10),

		MarketFeedURL:    getEnv("MARKET_FEED_URL", "https://query1.finance.yahoo.com"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnvAsInt64("TELEGRAM_CHAT_ID", 0),

		R2AccountEndpoint:   getEnv("R2_ACCOUNT_ENDPOINT", ""),
		R2Bucket:            getEnv("R2_BUCKET", ""),
		R2AccessKeyID:       getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey:   getEnv("R2_SECRET_ACCESS_KEY", ""),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		BackupDir:           getEnv("BACKUP_DIR", "./data/backups"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("JOB_MAX_RETRIES must not be negative")
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT_MINUTES must be positive")
	}

	// Note: OpenAI / Telegram credentials optional; the jobs that need
	// them are not registered when they are missing.

	return nil
}

// BackupsEnabled reports whether cloud backups are fully configured.
func (c *Config) BackupsEnabled() bool {
	return c.R2AccountEndpoint != "" && c.R2Bucket != "" &&
		c.R2AccessKeyID != "" && c.R2SecretAccessKey != ""
}

// Helper functions
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
