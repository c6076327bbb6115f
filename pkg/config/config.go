// Package config resolves the collection plan from a JSON config file,
// built-in defaults, and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// EnvAPIKey is the environment variable checked first for the API credential.
const EnvAPIKey = "POLYGON_API_KEY"

// MinPageLimit is the floor applied when the adaptive controller shrinks the
// page size under sustained failure.
const MinPageLimit = 25

// ErrMissingAPIKey is returned when neither the environment nor the config
// file provides a credential. This is the only fatal startup condition.
var ErrMissingAPIKey = errors.New("no API key found: set " + EnvAPIKey + " or 'polygon_api_key' in the config file")

// RetryConfig holds the per-page retry policy.
type RetryConfig struct {
	// Tries is the attempt budget per page fetch (including the first attempt).
	Tries int `mapstructure:"tries" json:"tries"`

	// BackoffSeconds is the linear backoff unit; attempt n sleeps n times this.
	BackoffSeconds float64 `mapstructure:"backoff_seconds" json:"backoff_seconds"`
}

// QualityConfig names the fields the quality assessor inspects.
type QualityConfig struct {
	// IDField is the primary identifier field (alphanumeric plus '.' and '-').
	IDField string `mapstructure:"id_field" json:"id_field"`

	// NameField is the descriptive name field.
	NameField string `mapstructure:"name_field" json:"name_field"`
}

// OutputConfig lists the artifact paths written at the end of a run.
type OutputConfig struct {
	JSONPath     string `mapstructure:"json_path" json:"json_path"`
	SummaryPath  string `mapstructure:"summary_path" json:"summary_path"`
	MetadataPath string `mapstructure:"metadata_path" json:"metadata_path"`
	QualityPath  string `mapstructure:"quality_path" json:"quality_path"`
	LogPath      string `mapstructure:"log_path" json:"log_path"`
}

// CacheConfig controls the optional redis-backed page cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" json:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr" json:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl" json:"ttl"`
}

// Config is the resolved collection plan. It is immutable after Load except
// for the page-size limit, which the adaptive controller may shrink.
type Config struct {
	BaseURL         string            `mapstructure:"base_url" json:"base_url"`
	Endpoint        string            `mapstructure:"endpoint" json:"endpoint"`
	Params          map[string]string `mapstructure:"params" json:"params"`
	MaxPages        int               `mapstructure:"max_pages" json:"max_pages"`
	TargetRecords   int               `mapstructure:"target_records" json:"target_records"`
	BaseDelay       float64           `mapstructure:"base_delay" json:"base_delay"`
	Retry           RetryConfig       `mapstructure:"retry" json:"retry"`
	RequiredFields  []string          `mapstructure:"required_fields" json:"required_fields"`
	FieldsToKeep    []string          `mapstructure:"fields_to_keep" json:"fields_to_keep"`
	DedupeKeyFields []string          `mapstructure:"dedupe_key_fields" json:"dedupe_key_fields"`
	RespectRPM      float64           `mapstructure:"respect_rpm" json:"respect_rpm"`
	Quality         QualityConfig     `mapstructure:"quality" json:"quality"`
	Output          OutputConfig      `mapstructure:"output" json:"output"`
	Cache           CacheConfig       `mapstructure:"cache" json:"cache"`
	LogLevel        string            `mapstructure:"log_level" json:"log_level"`
	APIKeyParam     string            `mapstructure:"api_key_param" json:"api_key_param"`

	// APIKey is the resolved credential. Never serialized into artifacts.
	APIKey string `mapstructure:"-" json:"-"`
}

// setDefaults registers the default for every key, mirroring the documented
// collection plan defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://api.polygon.io")
	v.SetDefault("endpoint", "/v3/reference/tickers")
	v.SetDefault("params", map[string]string{"active": "true", "limit": "100"})
	v.SetDefault("max_pages", 3)
	v.SetDefault("target_records", 250)
	v.SetDefault("base_delay", 1.0)
	v.SetDefault("retry.tries", 3)
	v.SetDefault("retry.backoff_seconds", 1.5)
	v.SetDefault("required_fields", []string{"ticker", "name"})
	v.SetDefault("fields_to_keep", []string{"ticker", "name", "market", "locale", "primary_exchange"})
	v.SetDefault("dedupe_key_fields", []string{"ticker"})
	v.SetDefault("respect_rpm", 4)
	v.SetDefault("quality.id_field", "ticker")
	v.SetDefault("quality.name_field", "name")
	v.SetDefault("output.json_path", "agent_output.json")
	v.SetDefault("output.summary_path", "agent_summary.json")
	v.SetDefault("output.metadata_path", "dataset_metadata.json")
	v.SetDefault("output.quality_path", "quality_report.json")
	v.SetDefault("output.log_path", "data_collection.log")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("log_level", "info")
	v.SetDefault("api_key_param", "apiKey")
	v.SetDefault("polygon_api_key", "")
}

// Load reads the config file at path (JSON), merges it over the defaults, and
// resolves the API credential env-first. An empty path loads pure defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Credential resolution: environment wins over the config key.
	cfg.APIKey = os.Getenv(EnvAPIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = v.GetString("polygon_api_key")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate rejects configurations that cannot drive a collection run.
func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive (got %d)", c.MaxPages)
	}
	if c.TargetRecords <= 0 {
		return fmt.Errorf("target_records must be positive (got %d)", c.TargetRecords)
	}
	if c.Retry.Tries <= 0 {
		return fmt.Errorf("retry.tries must be positive (got %d)", c.Retry.Tries)
	}
	if c.Retry.BackoffSeconds < 0 {
		return fmt.Errorf("retry.backoff_seconds must not be negative (got %v)", c.Retry.BackoffSeconds)
	}
	return nil
}

// PageLimit returns the current page-size limit from the query parameters.
// Returns 100 when the limit parameter is absent or malformed.
func (c *Config) PageLimit() int {
	raw, ok := c.Params["limit"]
	if !ok {
		return 100
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 100
	}
	return limit
}

// ShrinkPageLimit halves the page-size limit down to MinPageLimit and returns
// the new value. This is the one sanctioned post-load mutation, used by the
// adaptive controller as a gentler request shape under sustained failure.
func (c *Config) ShrinkPageLimit() int {
	limit := c.PageLimit() / 2
	if limit < MinPageLimit {
		limit = MinPageLimit
	}
	if c.Params == nil {
		c.Params = make(map[string]string)
	}
	c.Params["limit"] = strconv.Itoa(limit)
	return limit
}
