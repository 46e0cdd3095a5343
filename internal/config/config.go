package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all runtime configuration parameters
type Config struct {
	SeedURL            string   `json:"seed_url"`
	Keywords           []string `json:"keywords"`
	RelevanceThreshold *int     `json:"relevance_threshold"`
	TopK               *int     `json:"top_k"`
	MaxIterations      *int     `json:"max_iterations"`
	RequestDelayMs     *int     `json:"request_delay_ms"`
	RequestTimeoutMs   int      `json:"request_timeout_ms"`
	UserAgent          string   `json:"user_agent"`
	OutputPath         string   `json:"output_path"`
	DBPath             string   `json:"db_path"`
	MetricsPath        string   `json:"metrics_path"`
}

// LoadConfig reads and validates configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Apply defaults for missing values
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultThreshold is the relevance threshold used when none is configured
func DefaultThreshold(keywordCount int) int {
	return max(2, keywordCount/2)
}

// ApplyDefaults sets default values for unspecified fields
func ApplyDefaults(cfg *Config) {
	if cfg.RelevanceThreshold == nil {
		threshold := DefaultThreshold(len(cfg.Keywords))
		cfg.RelevanceThreshold = &threshold
	}
	if cfg.TopK == nil {
		capacity := 10
		cfg.TopK = &capacity
	}
	if cfg.MaxIterations == nil {
		iterations := 1000
		cfg.MaxIterations = &iterations
	}
	if cfg.RequestDelayMs == nil {
		delay := 2000
		cfg.RequestDelayMs = &delay
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 15000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Firefox/5.0"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "top_papers.txt"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "crawler.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
}

// Validate checks that required fields are present and values are sensible.
// Every returned error wraps ErrInvalidConfig.
func Validate(cfg *Config) error {
	if cfg.SeedURL == "" {
		return fmt.Errorf("%w: seed_url is required", ErrInvalidConfig)
	}
	seed, err := url.Parse(cfg.SeedURL)
	if err != nil || (seed.Scheme != "http" && seed.Scheme != "https") || seed.Host == "" {
		return fmt.Errorf("%w: seed_url must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if len(cfg.Keywords) == 0 {
		return fmt.Errorf("%w: at least one keyword is required", ErrInvalidConfig)
	}
	for i, keyword := range cfg.Keywords {
		if strings.TrimSpace(keyword) == "" {
			return fmt.Errorf("%w: keyword %d is blank", ErrInvalidConfig, i)
		}
	}
	if cfg.RelevanceThreshold == nil || *cfg.RelevanceThreshold < 0 {
		return fmt.Errorf("%w: relevance_threshold must be >= 0", ErrInvalidConfig)
	}
	if cfg.TopK == nil || *cfg.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1", ErrInvalidConfig)
	}
	if cfg.MaxIterations == nil || *cfg.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be >= 1", ErrInvalidConfig)
	}
	if cfg.RequestDelayMs == nil || *cfg.RequestDelayMs < 0 {
		return fmt.Errorf("%w: request_delay_ms must be >= 0", ErrInvalidConfig)
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("%w: request_timeout_ms must be >= 1000", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.OutputPath) == "" {
		return fmt.Errorf("%w: output_path is required", ErrInvalidConfig)
	}
	return nil
}

// Threshold returns the effective relevance threshold
func (c *Config) Threshold() int {
	if c.RelevanceThreshold == nil {
		return DefaultThreshold(len(c.Keywords))
	}
	return *c.RelevanceThreshold
}

// Capacity returns the configured top-k size, or zero when unset
func (c *Config) Capacity() int {
	if c.TopK == nil {
		return 0
	}
	return *c.TopK
}

// IterationLimit returns the configured iteration budget, or zero when unset
func (c *Config) IterationLimit() int {
	if c.MaxIterations == nil {
		return 0
	}
	return *c.MaxIterations
}

// RequestDelay returns the pause between consecutive fetch cycles
func (c *Config) RequestDelay() time.Duration {
	if c.RequestDelayMs == nil {
		return 0
	}
	return time.Duration(*c.RequestDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
