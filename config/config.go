package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Identity of the monitoring session; configurations and alerts are
	// keyed by this user.
	UserID string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Tick feed
	FeedURL     string
	BatchMillis int // how often the batcher drains the ring into the engine

	// Notification sinks (empty disables the channel sink)
	BrowserWebhookURL string
	EmailWebhookURL   string
	TelegramBotToken  string
	TelegramChatID    string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		UserID: getEnv("ALERT_USER_ID", "default"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/alerts.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		FeedURL:     getEnv("FEED_URL", "ws://localhost:9001/ws"),
		BatchMillis: getEnvInt("BATCH_MILLIS", 200),

		BrowserWebhookURL: getEnv("BROWSER_WEBHOOK_URL", ""),
		EmailWebhookURL:   getEnv("EMAIL_WEBHOOK_URL", ""),
		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s value: %q", key, v)
		return fallback
	}
	return n
}
