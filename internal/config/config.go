package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the hlsopt CLI.
type Config struct {
	DatabaseURL string
	RedisURL    string
	ProjectRoot string

	KnowledgeBase string // donor feature vectors and Pareto tables
	Applications  string // target application sources
	Output        string
	Catalog       string // optional YAML action-point catalog

	DeviceID    string
	ClockPeriod float64 // ns
	Timeout     time.Duration
	VitisBinary string
	LogLevel    slog.Level
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	cfg := &Config{
		DatabaseURL: getEnv("HLSOPT_DATABASE_URL", "postgres://localhost:5432/hlsopt?sslmode=disable"),
		RedisURL:    getEnv("HLSOPT_REDIS_URL", "redis://localhost:6379/0"),
		ProjectRoot: getEnv("HLSOPT_PROJECT_ROOT", projectRoot),
		DeviceID:    getEnv("HLSOPT_DEVICE_ID", "xczu7ev-ffvc1156-2-e"),
		VitisBinary: getEnv("HLSOPT_VITIS_BINARY", "vitis_hls"),
		Catalog:     os.Getenv("HLSOPT_CATALOG"),
	}
	cfg.KnowledgeBase = cfg.resolve(getEnv("HLSOPT_KNOWLEDGE_BASE", "KnowledgeBase"))
	cfg.Applications = cfg.resolve(getEnv("HLSOPT_APPLICATIONS", "Applications"))
	cfg.Output = cfg.resolve(getEnv("HLSOPT_OUTPUT", "output"))
	if cfg.Catalog != "" {
		cfg.Catalog = cfg.resolve(cfg.Catalog)
	}

	cfg.ClockPeriod, err = strconv.ParseFloat(getEnv("HLSOPT_CLOCK_PERIOD", "3.33"), 64)
	if err != nil || cfg.ClockPeriod <= 0 {
		return nil, fmt.Errorf("parse HLSOPT_CLOCK_PERIOD: invalid value %q", os.Getenv("HLSOPT_CLOCK_PERIOD"))
	}
	cfg.Timeout, err = time.ParseDuration(getEnv("HLSOPT_TIMEOUT", "1h"))
	if err != nil {
		return nil, fmt.Errorf("parse HLSOPT_TIMEOUT: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(getEnv("HLSOPT_LOG_LEVEL", "info")))); err != nil {
		return nil, fmt.Errorf("parse HLSOPT_LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

// resolve makes relative paths relative to the project root.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectRoot, p)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
