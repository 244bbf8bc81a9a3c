// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultExcludedWords drops crypto up/down and sports-style markets from the catalog.
var DefaultExcludedWords = []string{
	"Up or Down", "Ethereum", "Bitcoin", "Solana", "BTC", "ETH",
	"XRP", "SOL", "vs.", "LoL", "Spread", "Total",
}

// Config holds all configuration values for the spike engine.
type Config struct {
	// Polymarket endpoints
	PolymarketWSURL string
	GammaEventsURL  string

	// Detection thresholds
	MinBuyUSD      float64
	SpikeThreshold int
	TimeWindow     time.Duration
	MaxSignalPrice float64
	CounterStale   time.Duration

	// Market filter
	MinPrice      float64
	ExcludedWords []string

	// Catalog fetch
	CatalogPageSize    int
	CatalogConcurrency int
	CatalogMaxPages    int
	CatalogMaxRetries  int

	// Worker pool
	ChunkSize            int
	ReconnectBase        time.Duration
	ReconnectCapExponent int
	PingInterval         time.Duration
	SpawnStagger         time.Duration

	// Proxies
	ProxiesFile   string
	UseProxy      bool
	ProxyProbeURL string

	// Queue and engine loop
	QueueCapacity    int
	IdlePollInterval time.Duration

	// Orchestrator
	RefreshInterval time.Duration
	StatusInterval  time.Duration

	// Storage
	DBPath         string
	DatabaseURL    string
	SpikeKeep      int
	SpikeRetention time.Duration

	// Alert sinks
	HTTPAddr         string
	TelegramBotToken string
	TelegramChatID   string
	SinkBuffer       int
	SinkTimeout      time.Duration

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: environment variables > .env file > defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("GAMMA_EVENTS_URL", "https://gamma-api.polymarket.com/events")

	v.SetDefault("MIN_BUY_USD", 2500.0)
	v.SetDefault("SPIKE_THRESHOLD", 4)
	v.SetDefault("TIME_WINDOW_SECONDS", 120)
	v.SetDefault("MAX_SIGNAL_PRICE", 0.98)
	v.SetDefault("COUNTER_STALE_MINUTES", 30)

	v.SetDefault("MIN_PRICE", 0.95)
	v.SetDefault("EXCLUDED_WORDS", strings.Join(DefaultExcludedWords, ","))

	v.SetDefault("CATALOG_PAGE_SIZE", 100)
	v.SetDefault("CATALOG_CONCURRENCY", 20)
	v.SetDefault("CATALOG_MAX_PAGES", 500)
	v.SetDefault("CATALOG_MAX_RETRIES", 6)

	v.SetDefault("CHUNK_SIZE", 3000)
	v.SetDefault("RECONNECT_BASE_SECONDS", 5)
	v.SetDefault("RECONNECT_CAP_EXPONENT", 5)
	v.SetDefault("WS_PING_INTERVAL_SECONDS", 30)
	v.SetDefault("SPAWN_STAGGER_MS", 500)

	v.SetDefault("PROXIES_FILE", "")
	v.SetDefault("USE_PROXY", false)
	v.SetDefault("PROXY_PROBE_URL", "http://httpbin.org/ip")

	v.SetDefault("QUEUE_CAPACITY", 10000)
	v.SetDefault("IDLE_POLL_MS", 100)

	v.SetDefault("REFRESH_INTERVAL_SECONDS", 1200)
	v.SetDefault("STATUS_INTERVAL_SECONDS", 30)

	v.SetDefault("DB_PATH", "./data/signals.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SPIKE_KEEP", 100)
	v.SetDefault("SPIKE_RETENTION_HOURS", 6)

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")
	v.SetDefault("SINK_BUFFER", 256)
	v.SetDefault("SINK_TIMEOUT_SECONDS", 10)

	v.SetDefault("ENABLE_TUI", false)
	v.SetDefault("UI_REFRESH_MS", 500)

	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FILE", "spikes.log")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		PolymarketWSURL: v.GetString("POLYMARKET_WS_URL"),
		GammaEventsURL:  v.GetString("GAMMA_EVENTS_URL"),

		MinBuyUSD:      v.GetFloat64("MIN_BUY_USD"),
		SpikeThreshold: v.GetInt("SPIKE_THRESHOLD"),
		TimeWindow:     time.Duration(v.GetInt("TIME_WINDOW_SECONDS")) * time.Second,
		MaxSignalPrice: v.GetFloat64("MAX_SIGNAL_PRICE"),
		CounterStale:   time.Duration(v.GetInt("COUNTER_STALE_MINUTES")) * time.Minute,

		MinPrice:      v.GetFloat64("MIN_PRICE"),
		ExcludedWords: splitList(v.GetString("EXCLUDED_WORDS")),

		CatalogPageSize:    v.GetInt("CATALOG_PAGE_SIZE"),
		CatalogConcurrency: v.GetInt("CATALOG_CONCURRENCY"),
		CatalogMaxPages:    v.GetInt("CATALOG_MAX_PAGES"),
		CatalogMaxRetries:  v.GetInt("CATALOG_MAX_RETRIES"),

		ChunkSize:            v.GetInt("CHUNK_SIZE"),
		ReconnectBase:        time.Duration(v.GetInt("RECONNECT_BASE_SECONDS")) * time.Second,
		ReconnectCapExponent: v.GetInt("RECONNECT_CAP_EXPONENT"),
		PingInterval:         time.Duration(v.GetInt("WS_PING_INTERVAL_SECONDS")) * time.Second,
		SpawnStagger:         time.Duration(v.GetInt("SPAWN_STAGGER_MS")) * time.Millisecond,

		ProxiesFile:   v.GetString("PROXIES_FILE"),
		UseProxy:      v.GetBool("USE_PROXY"),
		ProxyProbeURL: v.GetString("PROXY_PROBE_URL"),

		QueueCapacity:    v.GetInt("QUEUE_CAPACITY"),
		IdlePollInterval: time.Duration(v.GetInt("IDLE_POLL_MS")) * time.Millisecond,

		RefreshInterval: time.Duration(v.GetInt("REFRESH_INTERVAL_SECONDS")) * time.Second,
		StatusInterval:  time.Duration(v.GetInt("STATUS_INTERVAL_SECONDS")) * time.Second,

		DBPath:         v.GetString("DB_PATH"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		SpikeKeep:      v.GetInt("SPIKE_KEEP"),
		SpikeRetention: time.Duration(v.GetInt("SPIKE_RETENTION_HOURS")) * time.Hour,

		HTTPAddr:         v.GetString("HTTP_ADDR"),
		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   v.GetString("TELEGRAM_CHAT_ID"),
		SinkBuffer:       v.GetInt("SINK_BUFFER"),
		SinkTimeout:      time.Duration(v.GetInt("SINK_TIMEOUT_SECONDS")) * time.Second,

		EnableTUI:     v.GetBool("ENABLE_TUI"),
		UIRefreshRate: time.Duration(v.GetInt("UI_REFRESH_MS")) * time.Millisecond,

		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),
	}
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.PolymarketWSURL == "" {
		return fmt.Errorf("POLYMARKET_WS_URL is required")
	}
	if c.GammaEventsURL == "" {
		return fmt.Errorf("GAMMA_EVENTS_URL is required")
	}
	if c.MinBuyUSD <= 0 {
		return fmt.Errorf("MIN_BUY_USD must be positive")
	}
	if c.SpikeThreshold < 1 {
		return fmt.Errorf("SPIKE_THRESHOLD must be at least 1")
	}
	if c.TimeWindow <= 0 {
		return fmt.Errorf("TIME_WINDOW_SECONDS must be positive")
	}
	if c.MaxSignalPrice <= 0 || c.MaxSignalPrice > 1 {
		return fmt.Errorf("MAX_SIGNAL_PRICE must be in (0, 1]")
	}
	if c.MinPrice <= 0 || c.MinPrice > 1 {
		return fmt.Errorf("MIN_PRICE must be in (0, 1]")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be at least 1")
	}
	if c.ReconnectBase <= 0 {
		return fmt.Errorf("RECONNECT_BASE_SECONDS must be positive")
	}
	if c.ReconnectCapExponent < 0 || c.ReconnectCapExponent > 16 {
		return fmt.Errorf("RECONNECT_CAP_EXPONENT must be between 0 and 16")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL_SECONDS must be positive")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be at least 1")
	}
	if c.IdlePollInterval <= 0 {
		return fmt.Errorf("IDLE_POLL_MS must be positive")
	}
	if c.CatalogPageSize < 1 || c.CatalogConcurrency < 1 || c.CatalogMaxPages < 1 {
		return fmt.Errorf("CATALOG_PAGE_SIZE, CATALOG_CONCURRENCY and CATALOG_MAX_PAGES must be at least 1")
	}
	if c.CatalogMaxRetries < 0 {
		return fmt.Errorf("CATALOG_MAX_RETRIES must not be negative")
	}
	if c.RefreshInterval <= 0 || c.StatusInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL_SECONDS and STATUS_INTERVAL_SECONDS must be positive")
	}
	if c.SpikeKeep < 1 {
		return fmt.Errorf("SPIKE_KEEP must be at least 1")
	}
	if c.SinkBuffer < 1 {
		return fmt.Errorf("SINK_BUFFER must be at least 1")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR")
	}

	return nil
}

// TelegramEnabled reports whether chat notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// UsePostgres reports whether DATABASE_URL selects the Postgres signal store.
func (c *Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// MaskedTelegramToken returns the bot token with most characters hidden for logging.
func (c *Config) MaskedTelegramToken() string {
	return maskSecret(c.TelegramBotToken)
}

// MaskedDatabaseURL returns the database URL with most characters hidden for logging.
func (c *Config) MaskedDatabaseURL() string {
	return maskSecret(c.DatabaseURL)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
