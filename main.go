// Command threadcrawl incrementally crawls the discussion threads of configured
// articles into a local SQLite database.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/logging"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Global flags
var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "threadcrawl",
	Short: "Crawl article discussion threads into SQLite",
	Long: `threadcrawl walks the discussion threads of the configured articles page by page,
extracts every posting with its author and rating events and stores them idempotently,
so a crawl can be re-run or resumed at any time.

Configuration lives in a TOML file created with defaults on first run.`,
	Version:       Version + " (" + BuildTime + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is the platform config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(crawlCmd, watchCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "threadcrawl %s (built %s)\n", Version, BuildTime)
	},
}

// loadConfig reads the config file, creating it with defaults on first run.
func loadConfig() (*config.Config, string, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return nil, "", err
		}
	}

	cfg, err := config.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// First run - create default config
		cfg = config.Default()
		if err := cfg.SaveFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save default config: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Created default config at: %s\n", path)
		}
		return cfg, path, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// setup loads the config and builds the logger. The closer flushes the log file.
func setup() (*config.Config, string, zerolog.Logger, io.Closer, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, "", zerolog.Nop(), nil, err
	}

	logDir, err := cfg.LogDir()
	if err != nil {
		return nil, "", zerolog.Nop(), nil, err
	}
	log, closer, err := logging.New(cfg.Logging, logDir, verbose)
	if err != nil {
		return nil, "", zerolog.Nop(), nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	log.Debug().Str("config", path).Str("log_dir", logDir).Msg("Loaded configuration")
	return cfg, path, log, closer, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
