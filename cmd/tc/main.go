// Command tc is a dev CLI for threadcrawl maintenance and debugging tasks.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	tcbrowser "github.com/ibeckermayer/threadcrawl/internal/browser"
	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/store"
	"github.com/ibeckermayer/threadcrawl/internal/types"
)

const botTestURL = "https://bot.sannysoft.com"

var (
	engine     string
	openReport bool
)

var rootCmd = &cobra.Command{
	Use:           "tc",
	Short:         "threadcrawl maintenance and debugging tasks",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var botTestCmd = &cobra.Command{
	Use:   "bot-test",
	Short: "Open bot.sannysoft.com to audit the browser fingerprint",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.ErrOrStderr(), "Opening bot.sannysoft.com with stealth browser options...")

		// non-headless so you can see it
		session, err := tcbrowser.New(context.Background(), engine, false)
		if err != nil {
			return err
		}
		defer session.Close()

		if err := session.Navigate(context.Background(), botTestURL); err != nil {
			return fmt.Errorf("failed to navigate: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Press Enter to close the browser...")
		bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:       "open <config|cache|db>",
	Short:     "Open the config file, cache directory or database with the OS handler",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"config", "cache", "db"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := openTarget(args[0])
		if err != nil {
			return fmt.Errorf("failed to get path: %w", err)
		}
		if err := browser.OpenFile(path); err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		return nil
	},
}

var lastRunCmd = &cobra.Command{
	Use:   "last-run",
	Short: "Summarize the most recent crawl run",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := store.RunsDir()
		if err != nil {
			return err
		}
		var open func(string) error
		if openReport {
			open = browser.OpenFile
		}
		return lastRun(cmd, dir, open)
	},
}

// lastRun prints the latest report in dir and hands its file to open, if set.
func lastRun(cmd *cobra.Command, dir string, open func(string) error) error {
	report, path, err := store.LatestRunReport(dir)
	if err != nil {
		return err
	}
	printReport(cmd, report, path)
	if open == nil {
		return nil
	}
	if err := open(path); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	return nil
}

func init() {
	botTestCmd.Flags().StringVar(&engine, "engine", config.EngineChromedp, "browser engine: chromedp or rod")
	lastRunCmd.Flags().BoolVar(&openReport, "open", false, "open the report file with the OS handler")
	rootCmd.AddCommand(botTestCmd, openCmd, lastRunCmd)
}

func openTarget(target string) (string, error) {
	switch target {
	case "config":
		return config.ConfigPath()
	case "cache":
		return config.CacheDir()
	case "db":
		cfg, err := config.Load()
		if err != nil {
			cfg = config.Default()
		}
		return cfg.DatabasePath()
	default:
		return "", fmt.Errorf("unknown target: %s", target)
	}
}

func printReport(cmd *cobra.Command, r types.RunReport, path string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s)\n", r.ID, path)
	fmt.Fprintf(out, "Started %s, took %s\n", r.StartedAt.Format(time.RFC3339), r.Duration().Round(time.Second))
	for _, a := range r.Articles {
		fmt.Fprintf(out, "  %-9s #%d %s: %d pages, %d postings, %d ratings, budget left %d\n",
			a.State, a.ArticleID, a.URL, a.Pages, a.Postings, a.Ratings, a.BudgetLeft)
		if a.Error != "" {
			fmt.Fprintf(out, "            error: %s\n", a.Error)
		}
	}
	fmt.Fprintf(out, "Stored: %d articles, %d users, %d postings, %d ratings\n",
		r.Counts.Articles, r.Counts.Users, r.Counts.Postings, r.Counts.Ratings)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
