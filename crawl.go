package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/threadcrawl/internal/app"
	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/scheduler"
	"github.com/ibeckermayer/threadcrawl/internal/store"
)

// Crawl flags, shared by crawl and watch
var (
	continueArticle int64
	maxRetries      int
	noHeadless      bool
	engine          string
	dbPath          string
	urls            []string
	topology        string
)

// Watch flags
var (
	cronSpec string
	runNow   bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl all configured articles once",
	Example: `  threadcrawl crawl
  threadcrawl crawl --continue-article 3 --retries 20
  threadcrawl crawl --url https://www.derstandard.at/story/2000112608982 --no-headless`,
	RunE: runCrawl,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the crawl on a cron schedule",
	Long: `watch keeps running and crawls all configured articles on every tick of the
schedule. The config file is re-read before each run; every run starts with a
fresh retry budget per article.`,
	RunE: runWatch,
}

func init() {
	for _, cmd := range []*cobra.Command{crawlCmd, watchCmd} {
		f := cmd.Flags()
		f.Int64Var(&continueArticle, "continue-article", 0, "resume only this article id, skipping all others")
		f.IntVarP(&maxRetries, "retries", "r", 0, "error budget per article (default from config)")
		f.BoolVar(&noHeadless, "no-headless", false, "show the browser window")
		f.StringVar(&engine, "engine", "", "browser engine: chromedp or rod")
		f.StringVar(&dbPath, "db", "", "database file (default in the platform cache dir)")
		f.StringArrayVarP(&urls, "url", "u", nil, "crawl this article url instead of the configured list (repeatable)")
		f.StringVar(&topology, "topology", config.TopologyFlat, "thread topology of --url articles")
	}
	watchCmd.Flags().StringVar(&cronSpec, "cron", "", "cron schedule (default from config)")
	watchCmd.Flags().BoolVar(&runNow, "now", false, "run once immediately before waiting for the schedule")
}

// overrides applies the flags the user actually set.
func overrides(cmd *cobra.Command) func(*config.Config) {
	flags := cmd.Flags()
	return func(cfg *config.Config) {
		if flags.Changed("continue-article") {
			cfg.Crawl.ContinueArticle = continueArticle
		}
		if flags.Changed("retries") {
			cfg.Crawl.MaxRetries = maxRetries
		}
		if noHeadless {
			cfg.Crawl.Headless = false
		}
		if engine != "" {
			cfg.Crawl.Engine = engine
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		if len(urls) > 0 {
			cfg.Crawl.Articles = cfg.Crawl.Articles[:0:0]
			for _, u := range urls {
				cfg.Crawl.Articles = append(cfg.Crawl.Articles, config.ArticleConfig{URL: u, Topology: topology})
			}
		}
	}
}

func newApp(cmd *cobra.Command) (*app.App, func(), error) {
	cfg, path, log, closer, err := setup()
	if err != nil {
		return nil, nil, err
	}
	runsDir, err := store.RunsDir()
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	a := app.New(cfg, path, runsDir, log, app.WithOverrides(overrides(cmd)))
	return a, func() { closer.Close() }, nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.RunCrawl(ctx)
	if err != nil {
		return err
	}

	for _, r := range report.Articles {
		fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s (%d postings, %d ratings)\n", r.State, r.URL, r.Postings, r.Ratings)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := a.Config()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	schedule := cfg.Schedule.Cron
	if cronSpec != "" {
		schedule = cronSpec
	}

	log := a.Logger()
	sched, err := scheduler.New(cfg.Schedule.Timezone, log)
	if err != nil {
		return err
	}
	sched.SetJobTimeout(cfg.Schedule.Timeout())

	job := func(ctx context.Context) error {
		if err := a.ReloadConfig(); err != nil {
			log.Warn().Err(err).Msg("Keeping previous configuration")
		}
		_, err := a.RunCrawl(ctx)
		return err
	}
	if err := sched.AddCrawlJob(schedule, job); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runNow {
		if err := sched.RunNow(ctx, "crawl", job); err != nil {
			log.Error().Err(err).Msg("Initial crawl failed")
		}
	}

	sched.Start()
	for _, j := range sched.ListJobs() {
		log.Info().Str("job", j.Name).Time("next_run", j.NextRun).Msg("Waiting for schedule")
	}

	<-ctx.Done()
	<-sched.Stop().Done()
	return nil
}
