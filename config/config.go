// Package config loads infrastructure settings from environment variables
// and run definitions from YAML files.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all infrastructure configuration loaded from environment variables.
type Config struct {
	// Venue credentials (live runs only)
	VenueAPIKey     string
	VenueClientCode string
	VenuePassword   string
	VenueTOTPSecret string

	// Infrastructure
	RedisAddr      string
	RedisPassword  string
	SQLitePath     string
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string
	MetricsAddr    string

	// Subscription (comma-separated exchange:symbol pairs)
	SubscribeSymbols string

	// Paper execution
	OrderQty int

	// Alerting (all optional; empty disables the channel)
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string
}

// Load reads configuration from environment variables with sensible defaults.
// Venue credentials are optional here; LoadLive enforces them.
func Load() *Config {
	return &Config{
		VenueAPIKey:     getEnv("VENUE_API_KEY", ""),
		VenueClientCode: getEnv("VENUE_CLIENT_CODE", ""),
		VenuePassword:   getEnv("VENUE_PASSWORD", ""),
		VenueTOTPSecret: getEnv("VENUE_TOTP_SECRET", ""),

		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		SQLitePath:     getEnv("SQLITE_PATH", "data/bars.db"),
		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "lineflow"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASSWORD", ""),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),

		SubscribeSymbols: getEnv("SUBSCRIBE_SYMBOLS", "NSE:NIFTY50"),

		OrderQty: getEnvInt("ORDER_QTY", 1),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

// LoadLive is Load plus the venue credentials a live run cannot start without.
func LoadLive() *Config {
	cfg := Load()
	cfg.VenueAPIKey = mustEnv("VENUE_API_KEY")
	cfg.VenueClientCode = mustEnv("VENUE_CLIENT_CODE")
	cfg.VenuePassword = mustEnv("VENUE_PASSWORD")
	cfg.VenueTOTPSecret = mustEnv("VENUE_TOTP_SECRET")
	return cfg
}

// ParseSymbols splits SubscribeSymbols into (exchange, symbol) pairs.
func (c *Config) ParseSymbols() [][2]string {
	parts := strings.Split(c.SubscribeSymbols, ",")
	out := make([][2]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ex, sym, ok := strings.Cut(p, ":")
		if !ok || ex == "" || sym == "" {
			log.Printf("[config] skipping invalid symbol spec: %q", p)
			continue
		}
		out = append(out, [2]string{ex, sym})
	}
	return out
}

// ── run definitions ──

// RunSpec is a YAML-declared backtest or live run.
type RunSpec struct {
	Name     string     `yaml:"name"`
	Mode     string     `yaml:"mode"` // "stream", "batch" or "both"
	Feeds    []FeedSpec `yaml:"feeds"`
	Strategy StratSpec  `yaml:"strategy"`

	// Bounded line storage: 0 keeps full history, >0 is ring slack on top
	// of each node's resolved warm-up.
	RingSlack int  `yaml:"ring_slack"`
	Bounded   bool `yaml:"bounded"`
}

// FeedSpec declares one data feed of a run.
type FeedSpec struct {
	Name     string `yaml:"name"`
	Source   string `yaml:"source"` // "csv", "sqlite", "clickhouse"
	Path     string `yaml:"path"`   // csv only
	Exchange string `yaml:"exchange"`
	Symbol   string `yaml:"symbol"`
	AfterTS  int64  `yaml:"after_ts"`

	// Resample compresses the loaded bars into a larger interval
	// before the run, e.g. "5m". Empty keeps the source interval.
	Resample string `yaml:"resample"`
}

// StratSpec declares the strategy and its parameters.
type StratSpec struct {
	Kind       string `yaml:"kind"` // "sma_cross"
	FastPeriod int    `yaml:"fast_period"`
	SlowPeriod int    `yaml:"slow_period"`
	RSIPeriod  int    `yaml:"rsi_period"`
}

// LoadRunSpec parses and validates a YAML run definition.
func LoadRunSpec(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run spec: %w", err)
	}
	var spec RunSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse run spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("run spec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate checks the parts every run needs.
func (s *RunSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Mode {
	case "", "stream", "batch", "both":
	default:
		return fmt.Errorf("mode must be stream, batch or both, got %q", s.Mode)
	}
	if len(s.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	for i, f := range s.Feeds {
		switch f.Source {
		case "csv":
			if f.Path == "" {
				return fmt.Errorf("feed %d: csv source needs a path", i)
			}
		case "sqlite", "clickhouse":
			if f.Symbol == "" {
				return fmt.Errorf("feed %d: %s source needs a symbol", i, f.Source)
			}
		default:
			return fmt.Errorf("feed %d: unknown source %q", i, f.Source)
		}
		if f.Resample != "" {
			if _, err := time.ParseDuration(f.Resample); err != nil {
				return fmt.Errorf("feed %d: bad resample interval %q", i, f.Resample)
			}
		}
	}
	if s.Strategy.Kind == "" {
		return fmt.Errorf("strategy.kind is required")
	}
	if s.Strategy.FastPeriod >= s.Strategy.SlowPeriod {
		return fmt.Errorf("strategy fast_period must be < slow_period")
	}
	return nil
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
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
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
