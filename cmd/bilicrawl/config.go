package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bilicrawl/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage bilicrawl configuration files.

Configuration is resolved in priority order:
  - Command line flags (highest)
  - Environment variables (BILICRAWL_*)
  - .env file
  - Configuration file (.bilicrawl.yaml)
  - Default values (lowest)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default settings",
	Run:   runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Run:   runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configFile
	if path == "" {
		path = ".bilicrawl.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		fatal("configuration file already exists: "+path, nil)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		fatal("failed to create configuration file", err)
	}

	fmt.Println("Configuration file created:", path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the file to taste")
	fmt.Println("2. Store credentials with 'bilicrawl auth login' or BILI_* env vars")
	fmt.Println("3. Start crawling, e.g. 'bilicrawl list-videos <uid>'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fatal("failed to format configuration", err)
	}

	fmt.Println("Resolved configuration:")
	fmt.Println()
	fmt.Print(string(data))
}
