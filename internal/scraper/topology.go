// Package scraper turns rendered discussion threads into raw posting records.
package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/page"
	"github.com/ibeckermayer/threadcrawl/internal/types"
)

// Unit is one posting found on the current page, not yet extracted.
type Unit struct {
	RefID       string
	ParentRefID *string
	Level       int
}

// Topology walks one structural kind of discussion thread.
type Topology interface {
	Name() string
	// Prepare runs after every navigation to the first page of a thread.
	Prepare(ctx context.Context, p page.Page) error
	// ArticleMeta returns the data used to create the article row on first sighting.
	ArticleMeta(ctx context.Context, p page.Page, article config.ArticleConfig) (types.ArticleMeta, error)
	// Locate advances from the current page until refID is on it.
	// It reports how many pages it advanced, and false when pages ran out first.
	Locate(ctx context.Context, p page.Page, refID string) (bool, int, error)
	// Units lists the postings of the current page in traversal order.
	Units(ctx context.Context, p page.Page) ([]Unit, error)
	// Extract reads one unit. Errors are transient and may be retried on the same page.
	Extract(ctx context.Context, p page.Page, u Unit) (types.RawPosting, error)
	// Next advances to the following page and reports false at the end of the thread.
	Next(ctx context.Context, p page.Page) (bool, error)
}

// Topologies returns every supported topology keyed by its config name.
func Topologies(log zerolog.Logger, wait time.Duration, loc *time.Location) map[string]Topology {
	return map[string]Topology{
		config.TopologyFlat:   NewFlatPaginated(log, wait, loc),
		config.TopologyNested: NewRecursiveNested(log, wait, loc),
	}
}

type finder interface {
	Find(ctx context.Context, selector string) (page.Element, bool, error)
}

// optionalText returns the trimmed text of the first match, or false when absent.
func optionalText(ctx context.Context, root finder, selector string) (string, bool, error) {
	el, ok, err := root.Find(ctx, selector)
	if err != nil || !ok {
		return "", false, err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(text), true, nil
}

// requiredText is optionalText where absence is an extraction failure.
func requiredText(ctx context.Context, root finder, selector string) (string, error) {
	text, ok, err := optionalText(ctx, root, selector)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("element %s not found", selector)
	}
	return text, nil
}

// present reports whether selector matches anything under root.
func present(ctx context.Context, root finder, selector string) (bool, error) {
	_, ok, err := root.Find(ctx, selector)
	return ok, err
}

// count reads an optional count. Absent or malformed values are zero; malformed ones are logged.
func count(ctx context.Context, log zerolog.Logger, root finder, selector, field string) (int, error) {
	text, ok, err := optionalText(ctx, root, selector)
	if err != nil {
		return 0, err
	}
	if !ok {
		log.Debug().Str("field", field).Msg("Count not shown, assuming 0")
		return 0, nil
	}
	n, err := parseCount(text)
	if err != nil {
		log.Warn().Err(err).Str("field", field).Msg("Couldn't parse count, assuming 0")
		return 0, nil
	}
	return n, nil
}

func strPtr(s string) *string {
	return &s
}
