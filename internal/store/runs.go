package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/types"
)

const runsDirName = "runs"

// RunsDir returns the directory run reports are written to.
func RunsDir() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, runsDirName), nil
}

// reportFilename sorts chronologically by name; the id suffix keeps runs started
// within the same second apart.
func reportFilename(r types.RunReport) string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return r.StartedAt.UTC().Format("2006-01-02T15-04-05") + "_" + id + ".json"
}

// SaveRunReport writes r as JSON into dir. Returns the path to the saved file.
func SaveRunReport(dir string, r types.RunReport) (string, error) {
	return saveJSON(dir, reportFilename(r), r)
}

// LatestRunReport loads the most recent report in dir.
// Returns the report, the path it was loaded from, and any error.
func LatestRunReport(dir string) (types.RunReport, string, error) {
	path, err := latestFile(dir)
	if err != nil {
		return types.RunReport{}, "", err
	}
	r, err := loadJSON[types.RunReport](path)
	if err != nil {
		return types.RunReport{}, "", err
	}
	return r, path, nil
}

func saveJSON[T any](dir, name string, data T) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(dir, name)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

func loadJSON[T any](path string) (T, error) {
	var data T

	jsonData, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read report: %w", err)
	}

	if err := json.Unmarshal(jsonData, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return data, nil
}

// latestFile returns the last regular .json file in dir by name.
func latestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no run reports in %s", dir)
		}
		return "", err
	}

	// os.ReadDir sorts by name, which is chronological for our filenames
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			files = append(files, entry.Name())
		}
	}

	if len(files) == 0 {
		return "", fmt.Errorf("no run reports in %s", dir)
	}

	return filepath.Join(dir, files[len(files)-1]), nil
}
