package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/self-review/internal/gitlog"
)

var (
	discoverPath   string
	discoverOrg    string
	discoverAuthor string
	discoverYear   int
	discoverUpdate bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover repos with your commits, optionally filtered by GitHub org",
	Long: `Scan a directory for git repositories containing commits by the author
in the review year. Worktrees of the same repository are collapsed by
remote URL. With --update, the discovered repos are written back to the
config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return discoverRun(cmd)
	},
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverPath, "path", "p", "~/repos", "Directory to scan for git repos")
	discoverCmd.Flags().StringVarP(&discoverOrg, "org", "o", "", "GitHub org to filter by (optional)")
	discoverCmd.Flags().StringVarP(&discoverAuthor, "author", "a", "", "Author name/email to search for (default: config author)")
	discoverCmd.Flags().IntVarP(&discoverYear, "year", "y", 0, "Year to check commits (default: config year)")
	discoverCmd.Flags().BoolVarP(&discoverUpdate, "update", "u", false, "Update the config file with discovered repos")
	rootCmd.AddCommand(discoverCmd)
}

type discovered struct {
	Count  int
	Name   string
	Remote string
	Path   string
}

func discoverRun(cmd *cobra.Command) error {
	author := discoverAuthor
	if author == "" {
		author = viper.GetString("author")
	}
	if author == "" {
		return fmt.Errorf("no author given: pass --author or set it in the config")
	}

	year := discoverYear
	if year == 0 {
		year = configYear()
	}

	scanPath := expandHome(discoverPath)
	entries, err := os.ReadDir(scanPath)
	if err != nil {
		return fmt.Errorf("path not found: %s", scanPath)
	}

	since := yearStart(year)
	until := yearStart(year + 1)
	gc := gitlog.NewClient()

	orgMsg := ""
	if discoverOrg != "" {
		orgMsg = discoverOrg + " "
	}
	ui.Info("Scanning %s for %srepos with commits from '%s' in %d...", scanPath, orgMsg, author, year)
	fmt.Fprintln(ui.Out)

	var results []discovered
	seenRemotes := make(map[string]bool)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		repoDir := filepath.Join(scanPath, entry.Name())
		if _, err := os.Stat(filepath.Join(repoDir, ".git")); err != nil {
			continue
		}

		remote, err := gc.RemoteURL(repoDir)
		if err != nil {
			continue
		}
		if discoverOrg != "" && !strings.Contains(strings.ToLower(remote), strings.ToLower(discoverOrg)) {
			continue
		}
		// Same remote seen before means this is a worktree or a second clone
		if remote != "" && seenRemotes[remote] {
			continue
		}
		if remote != "" {
			seenRemotes[remote] = true
		}

		count, err := gc.CountCommits(repoDir, author, since, until)
		if err != nil || count == 0 {
			continue
		}
		results = append(results, discovered{Count: count, Name: entry.Name(), Remote: remote, Path: repoDir})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Count > results[j].Count })

	if len(results) == 0 {
		ui.Info("No %srepos found with commits from '%s' in %d.", orgMsg, author, year)
		return nil
	}

	table := ui.Table([]string{"Commits", "Repo", "Remote"})
	total := 0
	for _, r := range results {
		shortRemote := strings.TrimSuffix(strings.TrimPrefix(r.Remote, "git@github.com:"), ".git")
		_ = table.Append([]string{strconv.Itoa(r.Count), r.Name, shortRemote})
		total += r.Count
	}
	_ = table.Append([]string{strconv.Itoa(total), "TOTAL", fmt.Sprintf("%d repos", len(results))})
	_ = table.Render()

	if discoverUpdate {
		if err := updateConfigRepos(author, year, results); err != nil {
			return err
		}
		ui.Success("Updated config with %d repos.", len(results))
	}
	return nil
}

// updateConfigRepos rewrites author, year, and repos in the config file,
// preserving any other keys it contains.
func updateConfigRepos(author string, year int, results []discovered) error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	cfg := make(map[string]any)
	if data, err := os.ReadFile(cfgPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse existing config: %w", err)
		}
	}

	repos := make([]string, len(results))
	for i, r := range results {
		repos[i] = r.Path
	}
	cfg["author"] = author
	cfg["year"] = year
	cfg["repos"] = repos

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(cfgPath, data, 0644)
}
