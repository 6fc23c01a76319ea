package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// DataDir is the uploads root; pipeline outputs go to DataDir/processed.
	DataDir string

	StylizeEnabled bool
	StylizeURL     string
	StylizeTimeout time.Duration

	Quantizer        string
	DefaultNumColors int
	MaxNumColors     int
	MaxImageDim      int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

const (
	QuantizerMedianCut = "mediancut"
	QuantizerKMeans    = "kmeans"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DataDir:          getEnv("DATA_DIR", "./uploads"),
		StylizeEnabled:   getEnvBool("STYLIZE_ENABLED", true),
		StylizeURL:       getEnv("STYLIZE_URL", "http://localhost:8001"),
		StylizeTimeout:   time.Second * time.Duration(getEnvInt("STYLIZE_TIMEOUT_SECONDS", 60)),
		Quantizer:        getEnv("QUANTIZER", QuantizerMedianCut),
		DefaultNumColors: getEnvInt("DEFAULT_NUM_COLORS", 25),
		MaxNumColors:     getEnvInt("MAX_NUM_COLORS", 64),
		MaxImageDim:      getEnvInt("MAX_IMAGE_DIMENSION", 1024),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.Quantizer {
	case QuantizerMedianCut, QuantizerKMeans:
	default:
		return nil, fmt.Errorf("QUANTIZER must be %q or %q, got %q", QuantizerMedianCut, QuantizerKMeans, cfg.Quantizer)
	}
	if cfg.DefaultNumColors < 1 || cfg.DefaultNumColors > cfg.MaxNumColors {
		return nil, fmt.Errorf("DEFAULT_NUM_COLORS must be within [1, %d]", cfg.MaxNumColors)
	}
	// The process endpoint runs the pipeline synchronously, so the write
	// timeout has to outlast the stylization deadline.
	if cfg.HTTPWriteTimeout <= cfg.StylizeTimeout {
		return nil, fmt.Errorf("HTTP_WRITE_TIMEOUT_SECONDS must exceed STYLIZE_TIMEOUT_SECONDS")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
