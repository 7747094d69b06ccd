package model

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

var configValidator = validator.New()

// Config holds all runtime settings
type Config struct {
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Parse   ParseConfig   `yaml:"parse" mapstructure:"parse"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// PathsConfig locates the input documents and the persisted datasets
type PathsConfig struct {
	Documents string `yaml:"documents" mapstructure:"documents" validate:"required"` // Directory of crash report documents
	Data      string `yaml:"data" mapstructure:"data" validate:"required"`           // Directory holding reports.json, curation.json, ...
	Layers    string `yaml:"layers" mapstructure:"layers" validate:"required"`       // Directory for per-category GeoJSON layers
}

// ParseConfig controls the parse run
type ParseConfig struct {
	Workers         int `yaml:"workers" mapstructure:"workers" validate:"min=1"`
	CheckpointEvery int `yaml:"checkpoint_every" mapstructure:"checkpoint_every" validate:"min=0"` // Save after this many merged records (0 = only at end)
}

// GeocodeConfig configures the geocoding service client
type GeocodeConfig struct {
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	Email             string        `yaml:"email" mapstructure:"email" validate:"omitempty,email"`
	QuerySuffix       string        `yaml:"query_suffix" mapstructure:"query_suffix"`
	Bounds            Bounds        `yaml:"bounds" mapstructure:"bounds"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	MinDelay          time.Duration `yaml:"min_delay" mapstructure:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" mapstructure:"max_delay" validate:"gtefield=MinDelay"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries" validate:"min=1"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// CacheConfig controls the geocoder response cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// HTTPConfig holds outbound HTTP settings
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	HTTPProxy  string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy    string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// LLMConfig holds the optional curation suggester settings
type LLMConfig struct {
	Provider string        `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai anthropic ollama"` // "" disables suggestions
	Model    string        `yaml:"model" mapstructure:"model"`
	APIKey   string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL  string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LoggingConfig selects log verbosity and format
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Documents: "data/reports",
			Data:      "data",
			Layers:    "data/geocoding",
		},
		Parse: ParseConfig{
			Workers:         runtime.NumCPU(),
			CheckpointEvery: 50,
		},
		Geocode: GeocodeConfig{
			BaseURL:     "https://nominatim.openstreetmap.org",
			QuerySuffix: "Lincoln, NE",
			Bounds: Bounds{
				MinLat: 40.70,
				MaxLat: 40.93,
				MinLon: -96.85,
				MaxLon: -96.55,
			},
			RequestsPerSecond: 1,
			MinDelay:          500 * time.Millisecond,
			MaxDelay:          1500 * time.Millisecond,
			MaxRetries:        3,
			// The public Nominatim robots.txt disallows /search for generic
			// crawlers; its usage policy governs API clients instead
			RespectRobots: false,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     defaultCacheDir(),
			TTL:     30 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout:   15 * time.Second,
			UserAgent: "crashes/0.4 (+https://github.com/lnkbike/crashes)",
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".crashes-cache"
	}
	return filepath.Join(dir, "crashes")
}

// Validate checks the struct constraints declared in the validate tags
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
