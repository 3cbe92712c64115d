package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	tcbrowser "github.com/ibeckermayer/threadcrawl/internal/browser"
	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/crawler"
	"github.com/ibeckermayer/threadcrawl/internal/page"
	"github.com/ibeckermayer/threadcrawl/internal/scraper"
	"github.com/ibeckermayer/threadcrawl/internal/store"
	"github.com/ibeckermayer/threadcrawl/internal/types"
)

// SessionFactory starts the page session a crawl run drives.
type SessionFactory func(ctx context.Context, engine string, headless bool) (page.Session, error)

// App holds the application state.
type App struct {
	mu sync.RWMutex

	// immutable after creation
	configPath string
	runsDir    string
	newSession SessionFactory
	overrides  func(*config.Config)
	log        zerolog.Logger

	// Mutable fields - use getSnapshot() for concurrent access.
	config *config.Config
}

// snapshot holds fields that may be replaced by ReloadConfig.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config *config.Config
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config: a.config,
	}
}

// Option customizes an App.
type Option func(*App)

// WithSessionFactory replaces the browser engine used for crawl runs.
func WithSessionFactory(f SessionFactory) Option {
	return func(a *App) { a.newSession = f }
}

// WithOverrides applies command line overrides to every loaded config,
// including the ones read by ReloadConfig.
func WithOverrides(f func(*config.Config)) Option {
	return func(a *App) { a.overrides = f }
}

// New creates a new App instance. configPath is re-read by ReloadConfig and
// run reports are written to runsDir.
func New(cfg *config.Config, configPath, runsDir string, log zerolog.Logger, opts ...Option) *App {
	a := &App{
		configPath: configPath,
		runsDir:    runsDir,
		newSession: tcbrowser.New,
		overrides:  func(*config.Config) {},
		log:        log,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.overrides(cfg)
	a.config = cfg
	return a
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// Logger is the logger shared by all components of the app.
func (a *App) Logger() zerolog.Logger {
	return a.log
}

// RunCrawl performs one full crawl run over the configured articles and saves its report.
func (a *App) RunCrawl(ctx context.Context) (types.RunReport, error) {
	s := a.getSnapshot()
	cfg := s.config

	if err := cfg.Validate(); err != nil {
		return types.RunReport{}, fmt.Errorf("invalid config: %w", err)
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return types.RunReport{}, err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return types.RunReport{}, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	defer st.Close()
	a.log.Debug().Str("path", dbPath).Msg("Opened database")

	session, err := a.newSession(ctx, cfg.Crawl.Engine, cfg.Crawl.Headless)
	if err != nil {
		return types.RunReport{}, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close browser")
		}
	}()

	topologies := scraper.Topologies(a.log, cfg.Crawl.Wait(), cfg.Crawl.Location())
	c := crawler.New(session, st, topologies, crawler.Options{
		MaxRetries:      cfg.Crawl.MaxRetries,
		ContinueArticle: cfg.Crawl.ContinueArticle,
		Wait:            cfg.Crawl.Wait(),
	}, a.log)

	report, runErr := c.Run(ctx, cfg.Crawl.Articles)

	if path, err := store.SaveRunReport(a.runsDir, report); err != nil {
		a.log.Warn().Err(err).Msg("Failed to save run report")
	} else {
		a.log.Info().Str("path", path).Msg("Saved run report")
	}
	return report, runErr
}

// ReloadConfig reloads the configuration from disk.
// The previous configuration stays active when the file is invalid.
func (a *App) ReloadConfig() error {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return err
	}
	a.overrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	a.config = cfg
	a.mu.Unlock()

	a.log.Info().Str("path", a.configPath).Msg("Configuration reloaded")
	return nil
}
