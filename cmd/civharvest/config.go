package main

import (
	"fmt"
	"os"

	"civharvest/pkg/auth"
	"civharvest/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage civharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (CIVHARVEST_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.civharvest.yaml'
unless a different path is specified with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after every source has been applied.

The session cookie is masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
}

const exampleConfig = `# civharvest configuration
#
# Every option can also be set with an environment variable prefixed with
# CIVHARVEST_, for example CIVHARVEST_HARVEST_ITEM_DELAY=500ms.

api:
  base_url: "https://civitai.com/api/trpc"
  image_cdn_base: "https://image.civitai.com/xG1nkqKTMzGDvpLrqFT7WA"
  timeout: 30s
  # x-client-version header; update it when the site changes
  client_version: "5.0.1401"
  # Optional x-fingerprint header
  fingerprint: ""
  # Transport retries. 0 sends every request exactly once.
  max_retries: 0
  # Ceiling on requests per minute. 0 disables it.
  requests_per_minute: 90

auth:
  # Last resort token; prefer 'civharvest auth login'
  session_cookie: ""
  # Token cache: file, keyring or encrypted
  cache_backend: "file"
  cache_file: "~/.civitai_session"
  # Acquired tokens are also written here as CIVITAI_SESSION_COOKIE
  env_file: ".env"
  # Command printing cookies (JSON array or Cookie header) on stdout
  acquire_command: ""
  acquire_timeout: 5m
  # Environment variable holding the passphrase of the encrypted backend
  passphrase_env: "CIVHARVEST_PASSPHRASE"

harvest:
  # Pause between image detail requests
  item_delay: 200ms
  # 0 harvests everything
  limit: 0
  max_pages: 0
  period: "AllTime"
  sort: "Newest"
  # 1 PG, 2 PG-13, 4 R, 8 X, 16 XXX; add them up
  browsing_level: 31
  # Browsing preset type of your account, e.g. "some"; overrides the above
  preset: ""
  disable_poi: true
  disable_minor: true
  fetch_tags: true
  resume: false

output:
  directory: "./harvest"
  # json, jsonl, sqlite or none
  format: "json"
  sqlite_path: "./harvest/civharvest.db"

logging:
  # debug, info, warn, error
  level: "info"
  # Optional JSON log file
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".civharvest.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("refusing to overwrite %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Run 'civharvest auth login' to store your session cookie")
	fmt.Println("2. Start harvesting with 'civharvest harvest <collection-id>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := *cfg
	if display.Auth.SessionCookie != "" {
		display.Auth.SessionCookie = auth.Mask(display.Auth.SessionCookie)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (CIVHARVEST_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
	return nil
}
