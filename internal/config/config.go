package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alvmarrod/site-scribe/internal/version"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (SCRIBE_OUTPUT_PATH, ...)
const EnvPrefix = "SCRIBE"

// Config holds all runtime configuration parameters
type Config struct {
	SeedURL             string  `mapstructure:"seed_url"`
	RateLimitSeconds    float64 `mapstructure:"rate_limit_seconds"`
	FetchTimeoutSeconds float64 `mapstructure:"fetch_timeout_seconds"`
	MaxBodyBytes        int     `mapstructure:"max_body_bytes"`
	OutputPath          string  `mapstructure:"output_path"`
	MaxPages            int     `mapstructure:"max_pages"`
	MaxQueue            int     `mapstructure:"max_queue"`
	Workers             int     `mapstructure:"workers"`
	StrictDomain        bool    `mapstructure:"strict_domain"`
	UserAgent           string  `mapstructure:"user_agent"`
	IndexPath           string  `mapstructure:"index_path"`
	MetricsPath         string  `mapstructure:"metrics_path"`
	ListenAddr          string  `mapstructure:"listen_addr"`
	LogLevel            string  `mapstructure:"log_level"`
	LogFormat           string  `mapstructure:"log_format"`
}

// RateLimit is the minimum gap between two fetch attempts
func (c *Config) RateLimit() time.Duration {
	return seconds(c.RateLimitSeconds)
}

// FetchTimeout bounds a single request
func (c *Config) FetchTimeout() time.Duration {
	return seconds(c.FetchTimeoutSeconds)
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return cfg
}

// Load reads configuration from an optional file (JSON or YAML), the
// environment and defaults, in increasing order of precedence: defaults, file, env
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, so CLI flags bound to
// it take precedence over everything else
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	applyDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(v *viper.Viper) {
	v.SetDefault("seed_url", "")
	v.SetDefault("rate_limit_seconds", 1.0)
	v.SetDefault("fetch_timeout_seconds", 10.0)
	v.SetDefault("max_body_bytes", 10<<20)
	v.SetDefault("output_path", "scraped_content.txt")
	v.SetDefault("max_pages", 1000)
	v.SetDefault("max_queue", 100000)
	v.SetDefault("workers", 1)
	v.SetDefault("strict_domain", false)
	v.SetDefault("user_agent", version.UserAgent())
	v.SetDefault("index_path", "")
	v.SetDefault("metrics_path", "")
	v.SetDefault("listen_addr", ":5000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.RateLimitSeconds < 0 {
		return fmt.Errorf("rate_limit_seconds must be >= 0")
	}
	if cfg.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch_timeout_seconds must be > 0")
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must be >= 0")
	}
	if strings.TrimSpace(cfg.OutputPath) == "" {
		return fmt.Errorf("output_path is required")
	}
	if cfg.MaxPages < 0 {
		return fmt.Errorf("max_pages must be >= 0")
	}
	if cfg.MaxQueue < 0 {
		return fmt.Errorf("max_queue must be >= 0")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json")
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
