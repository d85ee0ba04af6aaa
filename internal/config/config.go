// Package config loads the process configuration from the environment.
// Defaults cover a local single-machine run; GALLICANAV_-prefixed variables
// override them, with "__" separating nesting levels
// (GALLICANAV_PIPELINE__WORKERS=8).
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/dhlab/gallicanav/internal/storage"
)

const envPrefix = "GALLICANAV_"

type Config struct {
	Primary  Primary        `koanf:"primary" validate:"required"`
	Pipeline PipelineConfig `koanf:"pipeline" validate:"required"`
	Storage  StorageConfig  `koanf:"storage" validate:"required"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server" validate:"required"`
}

type Primary struct {
	Env      string `koanf:"env" validate:"required"`
	LogLevel string `koanf:"log_level" validate:"required"`
}

// PipelineConfig carries the session-reconstruction thresholds and the run
// shape. The threshold defaults are the values the reference corpus was
// produced with; changing them changes the dataset.
type PipelineConfig struct {
	InactivityMinutes  int     `koanf:"inactivity_minutes" validate:"required,min=1"`
	RequestThreshold   float64 `koanf:"request_threshold" validate:"required,gt=0"`
	MinRequestsPerUser int     `koanf:"min_requests_per_user" validate:"required,min=1"`
	Workers            int     `koanf:"workers" validate:"required,min=1"`
	ProcessBots        bool    `koanf:"process_bots"`
	StrictParse        bool    `koanf:"strict_parse"`
	CrawlerToken       string  `koanf:"crawler_token"`
}

// StorageConfig selects the chunk store backend: a local directory tree, or
// an S3-compatible bucket when S3.Bucket is set.
type StorageConfig struct {
	DataDir string                    `koanf:"data_dir"`
	S3      storage.ObjectStoreConfig `koanf:"s3"`
}

// UseS3 reports whether the object-store backend is configured.
func (s StorageConfig) UseS3() bool {
	return s.S3.Bucket != ""
}

// DatabaseConfig points at the Postgres instance backing the completion
// ledger. An empty URL falls back to the in-memory ledger.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

type ServerConfig struct {
	Port         string `koanf:"port" validate:"required"`
	ReadTimeout  int    `koanf:"read_timeout" validate:"required"`
	WriteTimeout int    `koanf:"write_timeout" validate:"required"`
	IdleTimeout  int    `koanf:"idle_timeout" validate:"required"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"primary.env":                    "development",
		"primary.log_level":              "info",
		"pipeline.inactivity_minutes":    60,
		"pipeline.request_threshold":     1.0,
		"pipeline.min_requests_per_user": 5,
		"pipeline.workers":               4,
		"storage.data_dir":               "./data",
		"server.port":                    "8080",
		"server.read_timeout":            10,
		"server.write_timeout":           10,
		"server.idle_timeout":            60,
	}
}

// Load reads defaults, then the environment, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if !cfg.Storage.UseS3() && cfg.Storage.DataDir == "" {
		return nil, fmt.Errorf("validate config: either storage.data_dir or storage.s3.bucket must be set")
	}
	return cfg, nil
}
