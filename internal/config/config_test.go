package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Crawl.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Crawl.Wait())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 6*time.Hour, cfg.Schedule.Timeout())
}

func TestLoadFileKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[crawl]
max_retries = 2

[[crawl.articles]]
url = "https://example.com/a"
topology = "flat"

[schedule]
timeout_minutes = 45
`), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 45*time.Minute, cfg.Schedule.Timeout())
	assert.Equal(t, "0 */6 * * *", cfg.Schedule.Cron)
	assert.Equal(t, 2, cfg.Crawl.MaxRetries)
	assert.Equal(t, EngineChromedp, cfg.Crawl.Engine)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Crawl.MaxRetries = 4
	cfg.Crawl.Engine = EngineRod
	cfg.Crawl.Articles = []ArticleConfig{{
		URL:         "https://talk.example.com/embed/stream?asset_url=1",
		Topology:    TopologyNested,
		Title:       "Some title",
		PublishedAt: time.Date(2019, 12, 23, 10, 51, 0, 0, time.UTC),
	}}
	require.NoError(t, cfg.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())
	assert.Equal(t, 4, loaded.Crawl.MaxRetries)
	assert.Equal(t, EngineRod, loaded.Crawl.Engine)
	require.Len(t, loaded.Crawl.Articles, 1)
	assert.Equal(t, "Some title", loaded.Crawl.Articles[0].Title)
	assert.True(t, loaded.Crawl.Articles[0].PublishedAt.Equal(cfg.Crawl.Articles[0].PublishedAt))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero retries", func(c *Config) { c.Crawl.MaxRetries = 0 }},
		{"negative wait", func(c *Config) { c.Crawl.WaitSeconds = -1 }},
		{"zero schedule timeout", func(c *Config) { c.Schedule.TimeoutMinutes = 0 }},
		{"unknown engine", func(c *Config) { c.Crawl.Engine = "selenium" }},
		{"no articles", func(c *Config) { c.Crawl.Articles = nil }},
		{"empty url", func(c *Config) { c.Crawl.Articles[0].URL = "" }},
		{"unknown topology", func(c *Config) { c.Crawl.Articles[0].Topology = "tree" }},
		{"nested without metadata", func(c *Config) { c.Crawl.Articles[0].Topology = TopologyNested }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	c := CrawlConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, c.Location())
}

func TestDatabasePathOverride(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/tmp/x.db"
	path, err := cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", path)
}
