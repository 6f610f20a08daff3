package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"bilicrawl/pkg/config"
	"bilicrawl/pkg/logger"
	"bilicrawl/pkg/manager"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	outputDir   string
	concurrency int
	credFile    string
	quality     string
	noDanmaku   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bilicrawl",
	Short: "A Bilibili video and moments crawler",
	Long: `bilicrawl downloads videos, collections, and moments (dynamics) from
Bilibili user spaces.

Features:
  - Video downloads with multi-part support and danmaku export
  - Season/series collection downloads with automatic type detection
  - Moments crawl with full comment trees
  - Secure credential storage using the system keychain
  - Concurrent downloads with configurable limits
  - Automatic credential refresh and rate-limit backoff

Credentials come from BILI_* environment variables, a JSON credential
file, or the credential store (see 'bilicrawl auth login').`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .bilicrawl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of concurrent downloads")
	rootCmd.PersistentFlags().StringVar(&credFile, "credential", "", "path to JSON credential file")
	rootCmd.PersistentFlags().StringVar(&quality, "quality", "", "preferred video quality label")
	rootCmd.PersistentFlags().BoolVar(&noDanmaku, "no-danmaku", false, "skip danmaku download")

	rootCmd.SetVersionTemplate(`bilicrawl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig resolves the configuration from flags, env, and files, then
// initializes the global logger from it.
func loadConfig() *config.Config {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if concurrency > 0 {
		flags["concurrency"] = concurrency
	}
	if credFile != "" {
		flags["credential"] = credFile
	}
	if quality != "" {
		flags["quality"] = quality
	}
	if noDanmaku {
		flags["no-danmaku"] = true
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		fatal("failed to load configuration", err)
	}

	if err := logger.Initialize(&logger.Config{Level: cfg.Logging.Level, File: cfg.Logging.File}); err != nil {
		fatal("failed to initialize logger", err)
	}
	return cfg
}

// newManager builds the crawl manager from the resolved configuration.
func newManager() *manager.Manager {
	return newManagerFrom(loadConfig())
}

func newManagerFrom(cfg *config.Config) *manager.Manager {
	m, err := manager.New(cfg)
	if err != nil {
		fatal("failed to initialize crawler", err)
	}
	return m
}

// commandContext returns a context cancelled on SIGINT/SIGTERM, so an
// interrupted crawl stops dispatching new work while in-flight tasks
// finish.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseUID(arg string) int64 {
	uid, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || uid <= 0 {
		fatal(fmt.Sprintf("invalid uid %q", arg), nil)
	}
	return uid
}

func parseID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		fatal(fmt.Sprintf("invalid collection id %q", arg), nil)
	}
	return id
}

func fatal(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
