package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all pipeline settings, populated from environment variables.
// It is constructed once in main and passed explicitly into every component;
// nothing reads the process environment after Load returns.
type Config struct {
	// Data locations.
	GridNetCDF        string `env:"GRID_LATLON_NC" envDefault:"data/geodata/sfc_grid_latlon.nc"`
	BoundaryShapefile string `env:"REGION_BOUNDARY_SHP" envDefault:"data/geodata/region_boundaries.shp"`
	MappingFile       string `env:"GRID_MAPPING_FILE" envDefault:"data/geodata/grid_region_mapping.parquet"`
	RawDir            string `env:"RAW_CACHE_DIR" envDefault:"data/raw"`
	OutputDir         string `env:"OUTPUT_DIR" envDefault:"data/output"`

	// Upstream grid API. The auth key is consumed only by the acquisition
	// client, never by the mapping or aggregation core.
	APIBaseURL    string        `env:"KMA_API_BASE" envDefault:"https://apihub.kma.go.kr/api/typ01"`
	APIAuthKey    string        `env:"KMA_AUTH_KEY"`
	APITimeout    time.Duration `env:"KMA_TIMEOUT" envDefault:"2m"`
	APIPause      time.Duration `env:"KMA_PAUSE" envDefault:"500ms"`
	RetryAttempts int           `env:"KMA_RETRY_ATTEMPTS" envDefault:"3"`
	RetryBackoff  time.Duration `env:"KMA_RETRY_BACKOFF" envDefault:"10s"`

	Workers int `env:"WORKERS" envDefault:"4"`

	// CoverageWarnRatio is the unmapped-point ratio above which the mapping
	// build logs a coverage warning. The grid extends well past the coastline,
	// so a large unmapped share is normal; the warning fires only when it
	// exceeds the expected range.
	CoverageWarnRatio float64 `env:"COVERAGE_WARN_RATIO" envDefault:"0.85"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// MetricsAddr starts the health/metrics HTTP server when non-empty.
	MetricsAddr string `env:"METRICS_ADDR"`

	// Optional Kafka publisher for daily output rows.
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaSinkTopic string   `env:"KAFKA_SINK_TOPIC" envDefault:"region-daily-weather"`
	KafkaEnabled   bool     `env:"KAFKA_ENABLED"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Workers < 1 {
		return nil, errors.New("WORKERS must be at least 1")
	}
	if cfg.RetryAttempts < 1 {
		return nil, errors.New("KMA_RETRY_ATTEMPTS must be at least 1")
	}
	if cfg.CoverageWarnRatio < 0 || cfg.CoverageWarnRatio > 1 {
		return nil, errors.New("COVERAGE_WARN_RATIO must be between 0 and 1")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_SINK_TOPIC is not set")
	}

	return cfg, nil
}
