package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Entry server connection
	UpstreamURL    string `yaml:"upstream_url"`
	UpstreamAPIKey string `yaml:"upstream_api_key"`

	// Auth
	DocstreamAPIKey string `yaml:"docstream_api_key"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Session state
	SessionTTL    time.Duration `yaml:"session_ttl"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`

	// Fact supply
	FactsFile     string `yaml:"facts_file"`
	RedisURL      string `yaml:"redis_url"`
	RedisFactsKey string `yaml:"redis_facts_key"`

	// Presentation
	SurfaceWidth       int `yaml:"surface_width"`
	DefaultProficiency int `yaml:"default_proficiency"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:               "8090",
		UpstreamURL:        "http://localhost:5000",
		WorkerCount:        4,
		MaxQueueSize:       100,
		SessionTTL:         1 * time.Hour,
		StreamTimeout:      30 * time.Second,
		RedisFactsKey:      "docstream:facts",
		SurfaceWidth:       220,
		DefaultProficiency: 2,
	}
}

// Load reads the optional YAML file named by DOCSTREAM_CONFIG and then
// applies environment overrides.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("DOCSTREAM_CONFIG"))
}

// LoadFrom is Load with an explicit YAML file; an empty path skips it.
func LoadFrom(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg = Config{
		Port: envOr("PORT", cfg.Port),

		UpstreamURL:    envOr("UPSTREAM_URL", cfg.UpstreamURL),
		UpstreamAPIKey: envOr("UPSTREAM_API_KEY", cfg.UpstreamAPIKey),

		DocstreamAPIKey: envOr("DOCSTREAM_API_KEY", cfg.DocstreamAPIKey),

		WorkerCount:  envInt("WORKER_COUNT", cfg.WorkerCount),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize),

		SessionTTL:    envDuration("SESSION_TTL", cfg.SessionTTL),
		StreamTimeout: envDuration("STREAM_TIMEOUT", cfg.StreamTimeout),

		FactsFile:     envOr("FACTS_FILE", cfg.FactsFile),
		RedisURL:      envOr("REDIS_URL", cfg.RedisURL),
		RedisFactsKey: envOr("REDIS_FACTS_KEY", cfg.RedisFactsKey),

		SurfaceWidth:       envInt("SURFACE_WIDTH", cfg.SurfaceWidth),
		DefaultProficiency: envInt("DEFAULT_PROFICIENCY", cfg.DefaultProficiency),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 1 * time.Hour
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 30 * time.Second
	}
	if cfg.SurfaceWidth <= 0 {
		cfg.SurfaceWidth = 220
	}

	return cfg, nil
}

// decodeYAML rejects unknown keys so typos surface at startup.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	if c.UpstreamURL == "" {
		return fmt.Errorf("UPSTREAM_URL is required")
	}
	if c.DocstreamAPIKey == "" {
		return fmt.Errorf("DOCSTREAM_API_KEY is required")
	}
	if c.DefaultProficiency < 1 || c.DefaultProficiency > 3 {
		return fmt.Errorf("DEFAULT_PROFICIENCY must be 1, 2 or 3")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
