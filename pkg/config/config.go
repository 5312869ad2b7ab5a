package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultHost is the ESPA ordering service
	DefaultHost = "https://espa.cr.usgs.gov"

	SourceFeed = "feed"
	SourceAPI  = "api"

	envPrefix = "ESPA_"
)

// Config holds all configuration options for the bulk download client
type Config struct {
	ESPA      ESPAConfig      `yaml:"espa" toml:"espa" json:"espa"`
	Download  DownloadConfig  `yaml:"download" toml:"download" json:"download"`
	Retry     RetryConfig     `yaml:"retry" toml:"retry" json:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
	Output    OutputConfig    `yaml:"output" toml:"output" json:"output"`
	History   HistoryConfig   `yaml:"history" toml:"history" json:"history"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging" json:"logging"`
}

// ESPAConfig describes the ordering service and the account used against it
type ESPAConfig struct {
	Host           string        `yaml:"host" toml:"host" json:"host"`
	Email          string        `yaml:"email" toml:"email" json:"email"`
	Username       string        `yaml:"username" toml:"username" json:"username"`
	Password       string        `yaml:"password" toml:"password" json:"password"`
	Source         string        `yaml:"source" toml:"source" json:"source"`
	UserAgent      string        `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`
}

// DownloadConfig controls the resumable transfer loop
type DownloadConfig struct {
	ConcurrentItems int           `yaml:"concurrent_items" toml:"concurrent_items" json:"concurrent_items"`
	PauseMin        time.Duration `yaml:"pause_min" toml:"pause_min" json:"pause_min"`
	PauseMax        time.Duration `yaml:"pause_max" toml:"pause_max" json:"pause_max"`
	// ChunkTimeout bounds a single range request. 0 means no limit.
	ChunkTimeout time.Duration `yaml:"chunk_timeout" toml:"chunk_timeout" json:"chunk_timeout"`
}

// RetryConfig holds retry configuration for listing and transfer requests
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled" json:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" toml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" toml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" toml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" toml:"jitter_factor" json:"jitter_factor"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute"`
}

// OutputConfig holds output directory and console configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" toml:"base_directory" json:"base_directory"`
	Verbose       bool   `yaml:"verbose" toml:"verbose" json:"verbose"`
	Quiet         bool   `yaml:"quiet" toml:"quiet" json:"quiet"`
	NoColor       bool   `yaml:"no_color" toml:"no_color" json:"no_color"`
}

// HistoryConfig controls the advisory run history
type HistoryConfig struct {
	Enabled     bool          `yaml:"enabled" toml:"enabled" json:"enabled"`
	Directory   string        `yaml:"directory" toml:"directory" json:"directory"`
	MinInterval time.Duration `yaml:"min_interval" toml:"min_interval" json:"min_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level" json:"level"`
	File       string `yaml:"file" toml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" toml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" toml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" toml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ESPA: ESPAConfig{
			Host:           DefaultHost,
			Source:         SourceFeed,
			UserAgent:      "espadl/1.0",
			RequestTimeout: 60 * time.Second,
		},
		Download: DownloadConfig{
			ConcurrentItems: 1,
			PauseMin:        5 * time.Second,
			PauseMax:        30 * time.Second,
			ChunkTimeout:    0,
		},
		Retry: RetryConfig{
			Enabled:      true,
			MaxAttempts:  3,
			BaseDelay:    2 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
		},
		Output: OutputConfig{
			BaseDirectory: "",
		},
		History: HistoryConfig{
			Enabled:     true,
			MinInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setString("HOST", &c.ESPA.Host)
	setString("EMAIL", &c.ESPA.Email)
	setString("USERNAME", &c.ESPA.Username)
	setString("PASSWORD", &c.ESPA.Password)
	setString("SOURCE", &c.ESPA.Source)
	setString("OUTPUT_DIR", &c.Output.BaseDirectory)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	if v := os.Getenv(envPrefix + "CONCURRENT_ITEMS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCONCURRENT_ITEMS: %w", envPrefix, err))
		} else if n > 0 {
			c.Download.ConcurrentItems = n
		}
	}
	if v := os.Getenv(envPrefix + "REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUESTS_PER_MINUTE: %w", envPrefix, err))
		} else {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	for name, dst := range map[string]*time.Duration{
		"PAUSE_MIN":    &c.Download.PauseMin,
		"PAUSE_MAX":    &c.Download.PauseMax,
		"MIN_INTERVAL": &c.History.MinInterval,
	} {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				continue
			}
			*dst = d
		}
	}
	if v := os.Getenv(envPrefix + "VERBOSE"); v != "" {
		c.Output.Verbose = strings.EqualFold(v, "true") || v == "1"
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML or TOML file, chosen by extension
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".espadl.yaml",
		".espadl.yml",
		".espadl.toml",
		filepath.Join(home, ".config", "espadl", "config.yaml"),
		filepath.Join(home, ".config", "espadl", "config.yml"),
		filepath.Join(home, ".config", "espadl", "config.toml"),
		filepath.Join(home, ".espadl.yaml"),
		filepath.Join(home, ".espadl.toml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.ESPA.Host == "" {
		errs = append(errs, errors.New("ESPA host is required"))
	} else if u, err := url.Parse(c.ESPA.Host); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("ESPA host %q is not an absolute URL", c.ESPA.Host))
	}
	switch c.ESPA.Source {
	case SourceFeed, SourceAPI:
	default:
		errs = append(errs, fmt.Errorf("unknown order source %q (want %q or %q)", c.ESPA.Source, SourceFeed, SourceAPI))
	}
	if c.ESPA.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout cannot be negative"))
	}

	if c.Download.ConcurrentItems <= 0 {
		errs = append(errs, errors.New("concurrent items must be positive"))
	}
	if c.Download.ConcurrentItems > 10 {
		errs = append(errs, errors.New("concurrent items should not exceed 10"))
	}
	if c.Download.PauseMin < 0 || c.Download.PauseMax < 0 {
		errs = append(errs, errors.New("pause durations cannot be negative"))
	}
	if c.Download.PauseMax < c.Download.PauseMin {
		errs = append(errs, errors.New("pause max must not be lower than pause min"))
	}
	if c.Download.ChunkTimeout < 0 {
		errs = append(errs, errors.New("chunk timeout cannot be negative"))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Retry.Multiplier < 0 || c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		errs = append(errs, errors.New("retry multiplier must be >= 0 and jitter factor within [0, 1]"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.History.MinInterval < 0 {
		errs = append(errs, errors.New("history min interval cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.ESPA.Password != "" {
		cp.ESPA.Password = "********"
	}
	return &cp
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["host"].(string); ok && v != "" {
		c.ESPA.Host = v
	}
	if v, ok := flags["email"].(string); ok && v != "" {
		c.ESPA.Email = v
	}
	if v, ok := flags["username"].(string); ok && v != "" {
		c.ESPA.Username = v
	}
	if v, ok := flags["password"].(string); ok && v != "" {
		c.ESPA.Password = v
	}
	if v, ok := flags["source"].(string); ok && v != "" {
		c.ESPA.Source = v
	}
	if v, ok := flags["target-directory"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentItems = v
	}
	if v, ok := flags["pause-min"].(time.Duration); ok {
		c.Download.PauseMin = v
	}
	if v, ok := flags["pause-max"].(time.Duration); ok {
		c.Download.PauseMax = v
	}
	if v, ok := flags["max-retries"].(int); ok && v >= 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["verbose"].(bool); ok {
		c.Output.Verbose = v
	}
	if v, ok := flags["quiet"].(bool); ok {
		c.Output.Quiet = v
	}
	if v, ok := flags["no-color"].(bool); ok {
		c.Output.NoColor = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// godotenv never overrides variables that are already set
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".espadl.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
