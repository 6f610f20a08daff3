package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Retry.InitialWait)
	assert.Equal(t, 3, cfg.Download.Concurrency)
	assert.Equal(t, -1, cfg.Dynamic.MaxComments)
	assert.Equal(t, SubCommentsInline, cfg.Dynamic.SubCommentMode)
	assert.Equal(t, DetectFail, cfg.Collection.DetectPolicy)
	assert.True(t, cfg.Download.FetchDanmaku)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BILICRAWL_MAX_RETRIES", "7")
	t.Setenv("BILICRAWL_CONCURRENCY", "4")
	t.Setenv("BILICRAWL_OUTPUT_DIR", "/tmp/bili")
	t.Setenv("BILICRAWL_MAX_COMMENTS", "-1")
	t.Setenv("BILICRAWL_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 4, cfg.Download.Concurrency)
	assert.Equal(t, 4, cfg.Dynamic.Concurrency)
	assert.Equal(t, "/tmp/bili", cfg.Output.BaseDirectory)
	assert.Equal(t, -1, cfg.Dynamic.MaxComments)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
retry:
  max_retries: 2
  initial_wait: 1s
download:
  concurrency: 5
dynamic:
  sub_comment_mode: exhaustive
output:
  base_directory: ./out
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.InitialWait)
	assert.Equal(t, 5, cfg.Download.Concurrency)
	assert.Equal(t, SubCommentsExhaustive, cfg.Dynamic.SubCommentMode)
	assert.Equal(t, "./out", cfg.Output.BaseDirectory)
	// untouched values keep their defaults
	assert.True(t, cfg.Download.FetchDanmaku)
}

func TestLoadFromFile_Missing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Retry.MaxRetries = -1 },
			wantErr: "max retries",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Download.Concurrency = 0 },
			wantErr: "concurrency",
		},
		{
			name:    "excessive concurrency",
			mutate:  func(c *Config) { c.Download.Concurrency = 50 },
			wantErr: "should not exceed",
		},
		{
			name:    "bad sub comment mode",
			mutate:  func(c *Config) { c.Dynamic.SubCommentMode = "sometimes" },
			wantErr: "sub_comment_mode",
		},
		{
			name:    "bad detect policy",
			mutate:  func(c *Config) { c.Collection.DetectPolicy = "guess" },
			wantErr: "detect_policy",
		},
		{
			name:    "empty output dir",
			mutate:  func(c *Config) { c.Output.BaseDirectory = "" },
			wantErr: "output directory",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"output":       "/data/bili",
		"concurrency":  6,
		"max-comments": 100,
		"no-danmaku":   true,
		"log-level":    "warn",
	})

	assert.Equal(t, "/data/bili", cfg.Output.BaseDirectory)
	assert.Equal(t, 6, cfg.Download.Concurrency)
	assert.Equal(t, 6, cfg.Dynamic.Concurrency)
	assert.Equal(t, 100, cfg.Dynamic.MaxComments)
	assert.False(t, cfg.Download.FetchDanmaku)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Download.Concurrency = 7
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 7, loaded.Download.Concurrency)
}
