// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Resolver ResolverConfig `yaml:"resolver"`
	Lyrics   LyricsConfig   `yaml:"lyrics"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr           string   `yaml:"addr" default:":3001"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ReadTimeoutMs  int      `yaml:"read_timeout_ms" default:"30000" validate:"gte=1000"`
	WriteTimeoutMs int      `yaml:"write_timeout_ms" default:"30000" validate:"gte=1000"`
}

// CatalogConfig selects and configures the upstream catalog source.
// Settings are decoded by the catalog factory per source type.
type CatalogConfig struct {
	Type     string         `yaml:"type" default:"piped" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// ResolverConfig represents resolution cache configuration.
type ResolverConfig struct {
	TTLMinutes        int `yaml:"ttl_minutes" default:"30" validate:"gte=1,lte=1440"`
	RelatedTTLMinutes int `yaml:"related_ttl_minutes" default:"5" validate:"gte=1,lte=1440"`
	SearchPrefetch    int `yaml:"search_prefetch" default:"3" validate:"gte=0,lte=10"`
	RelatedPrefetch   int `yaml:"related_prefetch" default:"2" validate:"gte=0,lte=10"`
}

// LyricsConfig represents the LRCLIB lyrics lookup configuration.
// Lookup is on by default; Disabled turns the endpoint off.
type LyricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	BaseURL  string `yaml:"base_url" default:"https://lrclib.net" validate:"url"`
}

// StorageConfig represents local persistence configuration.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" default:"./data"`
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults, so the server runs out of the box. Environment variables
// take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("MELODIO_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MELODIO_CATALOG_URL"); v != "" {
		if c.Catalog.Settings == nil {
			c.Catalog.Settings = map[string]any{}
		}
		c.Catalog.Settings["base_url"] = v
	}
	if v := os.Getenv("MELODIO_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("MELODIO_CACHE_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resolver.TTLMinutes = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
