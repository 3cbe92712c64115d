package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "threadcrawl"

// Thread topologies
const (
	TopologyFlat   = "flat"
	TopologyNested = "nested"
)

// Browser engines
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Crawl    CrawlConfig    `toml:"crawl"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type CrawlConfig struct {
	// MaxRetries is the shared error budget of one article crawl.
	MaxRetries int `toml:"max_retries"`
	// ContinueArticle, when non-zero, is the only article crawled; it resumes from its anchor.
	ContinueArticle int64           `toml:"continue_article"`
	Headless        bool            `toml:"headless"`
	Engine          string          `toml:"engine"`
	WaitSeconds     int             `toml:"wait_seconds"`
	Timezone        string          `toml:"timezone"`
	Articles        []ArticleConfig `toml:"articles"`
}

// ArticleConfig is one article whose discussion thread is crawled.
type ArticleConfig struct {
	URL      string `toml:"url"`
	Topology string `toml:"topology"`
	// Title and PublishedAt are only read for topologies whose page carries no article header.
	Title       string    `toml:"title,omitempty"`
	PublishedAt time.Time `toml:"published_at,omitempty"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type ScheduleConfig struct {
	Cron           string `toml:"cron"`
	Timezone       string `toml:"timezone"`
	TimeoutMinutes int    `toml:"timeout_minutes"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Crawl: CrawlConfig{
			MaxRetries:  10,
			Headless:    true,
			Engine:      EngineChromedp,
			WaitSeconds: 3,
			Timezone:    "Europe/Vienna",
			Articles: []ArticleConfig{
				{
					URL:      "https://www.derstandard.at/story/2000112608982/fpoe-praesentiert-historikerbericht",
					Topology: TopologyFlat,
				},
				{
					URL:      "https://www.derstandard.at/story/2000114104569/fpoe-historikerberichtexperten-bewerten-blaues-papier",
					Topology: TopologyFlat,
				},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Schedule: ScheduleConfig{
			Cron:           "0 */6 * * *",
			Timezone:       "Europe/Vienna",
			TimeoutMinutes: 360,
		},
	}
}

// Wait is the fixed delay after every navigation or interaction.
func (c CrawlConfig) Wait() time.Duration {
	return time.Duration(c.WaitSeconds) * time.Second
}

// Location resolves the crawl timezone, falling back to UTC.
func (c CrawlConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

// Timeout bounds a single scheduled crawl.
func (s ScheduleConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// Validate checks the values the crawler depends on.
func (c *Config) Validate() error {
	if c.Crawl.MaxRetries < 1 {
		return fmt.Errorf("crawl.max_retries must be positive, got %d", c.Crawl.MaxRetries)
	}
	if c.Crawl.WaitSeconds < 0 {
		return fmt.Errorf("crawl.wait_seconds must not be negative, got %d", c.Crawl.WaitSeconds)
	}
	if c.Schedule.TimeoutMinutes < 1 {
		return fmt.Errorf("schedule.timeout_minutes must be positive, got %d", c.Schedule.TimeoutMinutes)
	}
	switch c.Crawl.Engine {
	case EngineChromedp, EngineRod:
	default:
		return fmt.Errorf("unknown browser engine: %q", c.Crawl.Engine)
	}
	if len(c.Crawl.Articles) == 0 {
		return fmt.Errorf("no articles configured")
	}
	for i, a := range c.Crawl.Articles {
		if a.URL == "" {
			return fmt.Errorf("article %d has no url", i)
		}
		switch a.Topology {
		case TopologyFlat:
		case TopologyNested:
			if a.Title == "" || a.PublishedAt.IsZero() {
				return fmt.Errorf("nested article %s needs title and published_at", a.URL)
			}
		default:
			return fmt.Errorf("article %s: unknown topology %q", a.URL, a.Topology)
		}
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory.
// On macOS this is ~/Library/Caches/threadcrawl/
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// DatabasePath returns the configured database path or the default inside CacheDir.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "postings.db"), nil
}

// LogDir returns the configured log directory or the default inside CacheDir.
func (c *Config) LogDir() (string, error) {
	if c.Logging.Dir != "" {
		return c.Logging.Dir, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "log"), nil
}

// Load reads config from the default path
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads config from path. Keys missing from the file keep their defaults,
// except the article list which comes from the file alone.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.Crawl.Articles = nil
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveFile writes config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
