package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/self-review/internal/output"
	"github.com/joescharf/self-review/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "self-review",
	Short: "Generate self-review summaries from your engineering activity",
	Long: `self-review caches your engineering activity - git commits, GitHub
pull requests, reviews and comments, and Slack reactions - in a local
SQLite database, and generates per-quarter self-review summaries from it.

Typical flow:
  self-review config init
  self-review discover --author 'Your Name' --update
  self-review fetch
  self-review prs
  self-review slack
  self-review review`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/self-review/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "self-review")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SELF_REVIEW")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "self-review")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "self-review.db"))
	viper.SetDefault("author", "")
	viper.SetDefault("year", time.Now().Year())
	viper.SetDefault("repos", []string{})
	viper.SetDefault("github.author", "")
	viper.SetDefault("github.repos", []string{})
	viper.SetDefault("github.extra_bots", []string{})
	viper.SetDefault("slack.token", "")
	viper.SetDefault("slack.cookie", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// Store is initialized lazily so config/version commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// configYear is the review year, defaulting to the current one.
func configYear() int {
	return viper.GetInt("year")
}

// yearStart is midnight UTC on Jan 1 of the given year.
func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// yearRange is the [Jan 1, Jan 1 of next year) window for the config year.
func yearRange() (time.Time, time.Time) {
	year := configYear()
	return yearStart(year), yearStart(year + 1)
}
