package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	// Service and Environment are stamped on every log event.
	Service     string
	Environment string

	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port              string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// UploadConfig bounds what a single request may send.
type UploadConfig struct {
	MaxFileBytes int64
	MaxFiles     int
}

// StoreConfig configures the temp file store and its sweeper.
type StoreConfig struct {
	Dir           string
	Retention     time.Duration
	SweepInterval time.Duration
	// IndexPath enables the bbolt createdAt index when set.
	IndexPath string
}

// StatsConfig configures the activity counter.
type StatsConfig struct {
	RedisURL string
	Key      string
	Timeout  time.Duration
}

// ConverterConfig configures LibreOffice.
type ConverterConfig struct {
	Binary  string
	Workers int
	Timeout time.Duration
}

// RenderConfig configures pdf-to-jpg rendering.
type RenderConfig struct {
	DPI     int
	Quality int
	Gray    bool
}

// FetchConfig configures remote inputs.
type FetchConfig struct {
	Enabled bool
	Timeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Server    ServerConfig
	Upload    UploadConfig
	Store     StoreConfig
	Stats     StatsConfig
	Converter ConverterConfig
	Render    RenderConfig
	Fetch     FetchConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Service:     getEnv("SERVICE_NAME", "pdforganizer"),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "")),
		Level:       getEnv("LOG_LEVEL", "info"),
		Pretty:      parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:        getEnv("LOG_FILE", ""),
		MaxSizeMB:   parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups:  parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays:  parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:    parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_" + cfg.Logging.Service,
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    parseList(getEnv("CORS_ORIGINS", "*")),
		ReadHeaderTimeout: parseDuration(getEnv("READ_HEADER_TIMEOUT", "10s"), 10*time.Second),
		ShutdownTimeout:   parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.Upload = UploadConfig{
		MaxFileBytes: parseInt64(getEnv("MAX_UPLOAD_MB", "10"), 10) << 20,
		MaxFiles:     parseInt(getEnv("MAX_UPLOAD_FILES", "20"), 20),
	}

	cfg.Store = StoreConfig{
		Dir:           getEnv("TEMP_DIR", "temp"),
		Retention:     parseDuration(getEnv("TEMP_RETENTION", "5m"), 5*time.Minute),
		SweepInterval: parseDuration(getEnv("SWEEP_INTERVAL", "5m"), 5*time.Minute),
		IndexPath:     getEnv("TEMP_INDEX_PATH", ""),
	}

	cfg.Stats = StatsConfig{
		RedisURL: getEnv("REDIS_URL", ""),
		Key:      getEnv("STATS_KEY", "stats:total_api_hits"),
		Timeout:  parseDuration(getEnv("STATS_TIMEOUT", "2s"), 2*time.Second),
	}

	cfg.Converter = ConverterConfig{
		Binary:  getEnv("SOFFICE_BIN", "soffice"),
		Workers: parseInt(getEnv("CONVERTER_WORKERS", "2"), 2),
		Timeout: parseDuration(getEnv("CONVERT_TIMEOUT", "180s"), 180*time.Second),
	}

	cfg.Render = RenderConfig{
		DPI:     parseInt(getEnv("RENDER_DPI", "150"), 150),
		Quality: parseInt(getEnv("RENDER_QUALITY", "85"), 85),
		Gray:    parseBool(getEnv("RENDER_GRAY", "false")),
	}

	cfg.Fetch = FetchConfig{
		Enabled: parseBool(getEnv("REMOTE_FETCH_ENABLED", "false")),
		Timeout: parseDuration(getEnv("FETCH_TIMEOUT", "30s"), 30*time.Second),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n > 0 {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && n > 0 {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
