package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "self-review"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage self-review configuration.

Running bare 'self-review config' is the same as 'self-review config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# self-review configuration
# See: self-review config show (for effective values and sources)

# Your git author name or email (partial match supported)
author: "{{ .Author }}"

# Year to review
year: {{ .Year }}

# SQLite database path (default: ~/.config/self-review/self-review.db)
# db_path: {{ .DBPath }}

# Local git repositories to include
# Use 'self-review discover --update' to auto-populate this list
repos: []
#  - ~/repos/project-1
#  - ~/repos/project-2

# GitHub
github:
  # Your GitHub username, for PR/review/comment fetching
  author: "{{ .GitHubAuthor }}"

  # Repositories in owner/repo form
  repos: []
  #  - acme/widgets

  # Additional bot accounts to ignore (logins ending in [bot] are always ignored)
  extra_bots: []

# Slack (browser-session credentials; also read from
# SELF_REVIEW_SLACK_TOKEN / SELF_REVIEW_SLACK_COOKIE)
slack:
  # xoxc- token from localStorage
  token: ""
  # xoxd- value of the 'd' cookie
  cookie: ""

# Summarization
anthropic:
  # API key (also read from the SDK's standard environment variables)
  api_key: ""
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	Author         string
	Year           int
	DBPath         string
	GitHubAuthor   string
	AnthropicModel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		Author:         viper.GetString("author"),
		Year:           configYear(),
		DBPath:         viper.GetString("db_path"),
		GitHubAuthor:   viper.GetString("github.author"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "author", EnvVar: "SELF_REVIEW_AUTHOR"},
	{Key: "year", EnvVar: "SELF_REVIEW_YEAR"},
	{Key: "db_path", EnvVar: "SELF_REVIEW_DB_PATH"},
	{Key: "repos", EnvVar: "SELF_REVIEW_REPOS"},
	{Key: "github.author", EnvVar: "SELF_REVIEW_GITHUB_AUTHOR"},
	{Key: "github.repos", EnvVar: "SELF_REVIEW_GITHUB_REPOS"},
	{Key: "slack.token", EnvVar: "SELF_REVIEW_SLACK_TOKEN"},
	{Key: "slack.cookie", EnvVar: "SELF_REVIEW_SLACK_COOKIE"},
	{Key: "anthropic.api_key", EnvVar: "SELF_REVIEW_ANTHROPIC_API_KEY"},
	{Key: "anthropic.model", EnvVar: "SELF_REVIEW_ANTHROPIC_MODEL"},
}

// redactedKeys are never printed in full.
var redactedKeys = map[string]bool{
	"slack.token":       true,
	"slack.cookie":      true,
	"anthropic.api_key": true,
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if redactedKeys[k.Key] {
			if s, ok := val.(string); ok && s != "" {
				val = "(set)"
			}
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'self-review config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
