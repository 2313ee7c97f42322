package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g.
// CIVHARVEST_HARVEST_ITEM_DELAY=500ms.
const EnvPrefix = "CIVHARVEST"

// Config holds all configuration options for the harvester
type Config struct {
	API     APIConfig     `yaml:"api" json:"api"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds transport settings for the tRPC endpoint
type APIConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url" split_words:"true"`
	ImageCDNBase      string        `yaml:"image_cdn_base" json:"image_cdn_base" split_words:"true"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout" split_words:"true"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent" split_words:"true"`
	ClientVersion     string        `yaml:"client_version" json:"client_version" split_words:"true"`
	Fingerprint       string        `yaml:"fingerprint" json:"fingerprint,omitempty" split_words:"true"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries" split_words:"true"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute" split_words:"true"`
}

// AuthConfig holds the credential chain settings
type AuthConfig struct {
	SessionCookie  string        `yaml:"session_cookie" json:"session_cookie,omitempty" split_words:"true"`
	CacheFile      string        `yaml:"cache_file" json:"cache_file" split_words:"true"`
	CacheBackend   string        `yaml:"cache_backend" json:"cache_backend" split_words:"true"`
	EnvFile        string        `yaml:"env_file" json:"env_file" split_words:"true"`
	AcquireCommand string        `yaml:"acquire_command" json:"acquire_command,omitempty" split_words:"true"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout" split_words:"true"`
	PassphraseEnv  string        `yaml:"passphrase_env" json:"passphrase_env" split_words:"true"`
}

// HarvestConfig holds pagination and browsing preferences
type HarvestConfig struct {
	ItemDelay      time.Duration `yaml:"item_delay" json:"item_delay" split_words:"true"`
	Limit          int           `yaml:"limit" json:"limit" split_words:"true"`
	MaxPages       int           `yaml:"max_pages" json:"max_pages" split_words:"true"`
	Period         string        `yaml:"period" json:"period" split_words:"true"`
	Sort           string        `yaml:"sort" json:"sort" split_words:"true"`
	BrowsingLevel  int           `yaml:"browsing_level" json:"browsing_level" split_words:"true"`
	ExcludedTagIDs []int         `yaml:"excluded_tag_ids" json:"excluded_tag_ids" envconfig:"EXCLUDED_TAG_IDS"`
	Include        []string      `yaml:"include" json:"include" split_words:"true"`
	DisablePoi     bool          `yaml:"disable_poi" json:"disable_poi" split_words:"true"`
	DisableMinor   bool          `yaml:"disable_minor" json:"disable_minor" split_words:"true"`
	FetchTags      bool          `yaml:"fetch_tags" json:"fetch_tags" split_words:"true"`
	Resume         bool          `yaml:"resume" json:"resume" split_words:"true"`
	Preset         string        `yaml:"preset" json:"preset,omitempty" split_words:"true"`
}

// OutputConfig holds where harvested records go
type OutputConfig struct {
	Directory  string `yaml:"directory" json:"directory" split_words:"true"`
	Format     string `yaml:"format" json:"format" split_words:"true"`
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path" envconfig:"SQLITE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultExcludedTagIDs are the tag ids the web client excludes by default.
var DefaultExcludedTagIDs = []int{
	415792, 426772, 5188, 5249, 130818, 130820,
	133182, 5351, 306619, 154326, 161829, 163032,
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "https://civitai.com/api/trpc",
			ImageCDNBase:      "https://image.civitai.com/xG1nkqKTMzGDvpLrqFT7WA",
			Timeout:           30 * time.Second,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			ClientVersion:     "5.0.1401",
			MaxRetries:        0,
			RequestsPerMinute: 90,
		},
		Auth: AuthConfig{
			CacheFile:      ".civitai_session",
			CacheBackend:   "file",
			EnvFile:        ".env",
			AcquireTimeout: 5 * time.Minute,
			PassphraseEnv:  "CIVHARVEST_PASSPHRASE",
		},
		Harvest: HarvestConfig{
			ItemDelay:      200 * time.Millisecond,
			Limit:          0,
			MaxPages:       0,
			Period:         "AllTime",
			Sort:           "Newest",
			BrowsingLevel:  31,
			ExcludedTagIDs: append([]int(nil), DefaultExcludedTagIDs...),
			Include:        []string{"cosmetics"},
			DisablePoi:     true,
			DisableMinor:   true,
			FetchTags:      true,
		},
		Output: OutputConfig{
			Directory:  "./harvest",
			Format:     "json",
			SQLitePath: "./harvest/civharvest.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv overrides fields from CIVHARVEST_* environment variables.
// Unset variables leave the current value untouched.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand config path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".civharvest.yaml",
		".civharvest.yml",
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		locations = append(locations, filepath.Join(xdg, "civharvest", "config.yaml"))
	}
	if home, err := homedir.Dir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".config", "civharvest", "config.yaml"),
			filepath.Join(home, ".civharvest.yaml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// ExpandPaths resolves a leading ~ in every path-valued field.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{
		&c.Auth.CacheFile,
		&c.Auth.EnvFile,
		&c.Output.Directory,
		&c.Output.SQLitePath,
		&c.Logging.File,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api base URL is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api timeout must be positive"))
	}
	if c.API.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.API.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	validBackends := map[string]bool{"file": true, "keyring": true, "encrypted": true}
	if !validBackends[strings.ToLower(c.Auth.CacheBackend)] {
		errs = append(errs, fmt.Errorf("invalid cache backend %q", c.Auth.CacheBackend))
	}
	if c.Auth.CacheFile == "" {
		errs = append(errs, errors.New("credential cache file is required"))
	}

	if c.Harvest.ItemDelay < 0 {
		errs = append(errs, errors.New("item delay cannot be negative"))
	}
	if c.Harvest.Limit < 0 {
		errs = append(errs, errors.New("limit cannot be negative"))
	}
	if c.Harvest.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}
	if c.Harvest.BrowsingLevel < 0 || c.Harvest.BrowsingLevel > 63 {
		errs = append(errs, errors.New("browsing level must be between 0 and 63"))
	}

	validFormats := map[string]bool{"json": true, "jsonl": true, "sqlite": true, "none": true}
	if !validFormats[strings.ToLower(c.Output.Format)] {
		errs = append(errs, fmt.Errorf("invalid output format %q", c.Output.Format))
	}
	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
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

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["session-cookie"].(string); ok && v != "" {
		c.Auth.SessionCookie = v
	}
	if v, ok := flags["acquire-command"].(string); ok && v != "" {
		c.Auth.AcquireCommand = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Output.Format = v
	}
	if v, ok := flags["sqlite-path"].(string); ok && v != "" {
		c.Output.SQLitePath = v
	}
	if v, ok := flags["limit"].(int); ok && v >= 0 {
		c.Harvest.Limit = v
	}
	if v, ok := flags["max-pages"].(int); ok && v >= 0 {
		c.Harvest.MaxPages = v
	}
	if v, ok := flags["item-delay"].(time.Duration); ok && v >= 0 {
		c.Harvest.ItemDelay = v
	}
	if v, ok := flags["browsing-level"].(int); ok && v > 0 {
		c.Harvest.BrowsingLevel = v
	}
	if v, ok := flags["sort"].(string); ok && v != "" {
		c.Harvest.Sort = v
	}
	if v, ok := flags["period"].(string); ok && v != "" {
		c.Harvest.Period = v
	}
	if v, ok := flags["preset"].(string); ok && v != "" {
		c.Harvest.Preset = v
	}
	if v, ok := flags["no-tags"].(bool); ok && v {
		c.Harvest.FetchTags = false
	}
	if v, ok := flags["resume"].(bool); ok {
		c.Harvest.Resume = v
	}
	if v, ok := flags["timeout"].(time.Duration); ok && v > 0 {
		c.API.Timeout = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment (.env included) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// godotenv never overrides variables that are already set
	_ = godotenv.Load(".env")
	if home, err := homedir.Dir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".civharvest.env"))
	}

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
