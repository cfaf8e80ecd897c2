// Package config loads engine configuration from environment variables
// (with .env support) and the YAML indicator profile.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"indicator-enginev1/internal/indicator"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Feed connection
	FeedURL        string
	FeedAPIKey     string
	FeedClientCode string
	FeedTOTPSecret string // optional: when set, a TOTP code is attached to the auth payload

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	HTTPAddr      string // query/control API
	MetricsAddr   string // Prometheus /metrics + /healthz

	// Engine tuning
	BufferCapacity int // rolling history depth per instrument
	QueueDepth     int // per-instrument tick queue depth
	HistoryPrewarm int // historical closes loaded per instrument at subscribe

	ProfilePath string // YAML indicator profile
	LogLevel    string
}

// Load reads configuration from a .env file (if present) and the
// environment, with sensible defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	return &Config{
		FeedURL:        getEnv("FEED_URL", "ws://127.0.0.1:8765/stream"),
		FeedAPIKey:     getEnv("FEED_API_KEY", ""),
		FeedClientCode: getEnv("FEED_CLIENT_CODE", ""),
		FeedTOTPSecret: getEnv("FEED_TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ticks.db"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		BufferCapacity: getEnvInt("BUFFER_CAPACITY", 200),
		QueueDepth:     getEnvInt("QUEUE_DEPTH", 1024),
		HistoryPrewarm: getEnvInt("HISTORY_PREWARM", 200),

		ProfilePath: getEnv("PROFILE_PATH", "profile.yaml"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// Profile is the YAML indicator profile: which instruments to subscribe and
// which indicators to compute for each.
type Profile struct {
	Instruments []InstrumentProfile `yaml:"instruments"`
}

// InstrumentProfile describes one subscription.
type InstrumentProfile struct {
	Exchange   string           `yaml:"exchange"`
	Symbol     string           `yaml:"symbol"`
	Modes      []string         `yaml:"modes"` // subset of ltp, quote, depth
	Indicators []indicator.Spec `yaml:"indicators"`
}

// LoadProfile parses the YAML profile at path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	if len(p.Instruments) == 0 {
		return nil, fmt.Errorf("profile %s: no instruments configured", path)
	}
	for _, ip := range p.Instruments {
		if ip.Exchange == "" || ip.Symbol == "" {
			return nil, fmt.Errorf("profile %s: instrument missing exchange/symbol", path)
		}
	}
	return &p, nil
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
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}
