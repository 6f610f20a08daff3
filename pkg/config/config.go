package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the crawler.
type Config struct {
	// Retry policy for API calls
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Pagination pacing
	Pager PagerConfig `yaml:"pager" json:"pager"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Dynamics / comment crawl settings
	Dynamic DynamicConfig `yaml:"dynamic" json:"dynamic"`

	// Collection resolution settings
	Collection CollectionConfig `yaml:"collection" json:"collection"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Credential file location (BILI_* env vars take effect underneath)
	Credential CredentialConfig `yaml:"credential" json:"credential"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// RetryConfig holds the retry policy shared by every API call.
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	InitialWait time.Duration `yaml:"initial_wait" json:"initial_wait"`
}

// PagerConfig holds inter-page delays for the two pagination flavors.
type PagerConfig struct {
	PageDelay   time.Duration `yaml:"page_delay" json:"page_delay"`
	CursorDelay time.Duration `yaml:"cursor_delay" json:"cursor_delay"`
}

// DownloadConfig holds video download settings.
type DownloadConfig struct {
	Concurrency  int           `yaml:"concurrency" json:"concurrency"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	Quality      string        `yaml:"quality" json:"quality"`
	FetchDanmaku bool          `yaml:"fetch_danmaku" json:"fetch_danmaku"`
	FFmpegPath   string        `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	SkipExisting bool          `yaml:"skip_existing" json:"skip_existing"`
}

// DynamicConfig holds moment/comment crawl settings.
type DynamicConfig struct {
	Concurrency    int    `yaml:"concurrency" json:"concurrency"`
	MaxComments    int    `yaml:"max_comments" json:"max_comments"`
	SubCommentMode string `yaml:"sub_comment_mode" json:"sub_comment_mode"`
}

// CollectionConfig holds collection-resolution settings.
type CollectionConfig struct {
	DetectPolicy string `yaml:"detect_policy" json:"detect_policy"`
}

// OutputConfig holds output directory configuration.
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// CredentialConfig points at the on-disk credential bundle.
type CredentialConfig struct {
	File string `yaml:"file" json:"file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Sub-comment fetch modes.
const (
	SubCommentsInline     = "inline"
	SubCommentsExhaustive = "exhaustive"
)

// Collection detection policies when neither scheme matches.
const (
	DetectFail         = "fail"
	DetectAssumeSeries = "assume-series"
)

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxRetries:  5,
			InitialWait: 3 * time.Second,
		},
		Pager: PagerConfig{
			PageDelay:   500 * time.Millisecond,
			CursorDelay: 300 * time.Millisecond,
		},
		Download: DownloadConfig{
			Concurrency:  3,
			Timeout:      10 * time.Minute,
			Quality:      "1080p",
			FetchDanmaku: true,
			FFmpegPath:   "ffmpeg",
			SkipExisting: true,
		},
		Dynamic: DynamicConfig{
			Concurrency:    5,
			MaxComments:    -1, // unlimited
			SubCommentMode: SubCommentsInline,
		},
		Collection: CollectionConfig{
			DetectPolicy: DetectFail,
		},
		Output: OutputConfig{
			BaseDirectory: "./downloads",
		},
		Credential: CredentialConfig{
			File: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("BILICRAWL_MAX_RETRIES"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Retry.MaxRetries = val
		}
	}
	if v := os.Getenv("BILICRAWL_CONCURRENCY"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.Download.Concurrency = val
			c.Dynamic.Concurrency = val
		}
	}
	if v := os.Getenv("BILICRAWL_OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := os.Getenv("BILICRAWL_CREDENTIAL_FILE"); v != "" {
		c.Credential.File = v
	}
	if v := os.Getenv("BILICRAWL_MAX_COMMENTS"); v != "" {
		var val int
		if _, err := fmt.Sscanf(v, "%d", &val); err == nil {
			c.Dynamic.MaxComments = val
		}
	}
	if v := os.Getenv("BILICRAWL_FFMPEG"); v != "" {
		c.Download.FFmpegPath = v
	}
	if v := os.Getenv("BILICRAWL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // no config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".bilicrawl.yaml",
		".bilicrawl.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "bilicrawl", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "bilicrawl", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".bilicrawl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Retry.InitialWait <= 0 {
		errs = append(errs, errors.New("initial wait must be positive"))
	}

	if c.Download.Concurrency <= 0 {
		errs = append(errs, errors.New("download concurrency must be positive"))
	}
	if c.Download.Concurrency > 10 {
		errs = append(errs, errors.New("download concurrency should not exceed 10"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Dynamic.Concurrency <= 0 {
		errs = append(errs, errors.New("dynamic concurrency must be positive"))
	}

	switch strings.ToLower(c.Dynamic.SubCommentMode) {
	case SubCommentsInline, SubCommentsExhaustive:
	default:
		errs = append(errs, fmt.Errorf("invalid sub_comment_mode %q", c.Dynamic.SubCommentMode))
	}

	switch strings.ToLower(c.Collection.DetectPolicy) {
	case DetectFail, DetectAssumeSeries:
	default:
		errs = append(errs, fmt.Errorf("invalid detect_policy %q", c.Collection.DetectPolicy))
	}

	if c.Output.BaseDirectory == "" {
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

// Save writes the configuration to a file.
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
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if concurrent, ok := flags["concurrency"].(int); ok && concurrent > 0 {
		c.Download.Concurrency = concurrent
		c.Dynamic.Concurrency = concurrent
	}
	if maxComments, ok := flags["max-comments"].(int); ok && maxComments != 0 {
		c.Dynamic.MaxComments = maxComments
	}
	if credFile, ok := flags["credential"].(string); ok && credFile != "" {
		c.Credential.File = credFile
	}
	if quality, ok := flags["quality"].(string); ok && quality != "" {
		c.Download.Quality = quality
	}
	if noDanmaku, ok := flags["no-danmaku"].(bool); ok && noDanmaku {
		c.Download.FetchDanmaku = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".bilicrawl.env"))

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
