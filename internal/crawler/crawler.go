// Package crawler runs the resumable per-article crawl: it walks a thread with a
// scraper.Topology, retries failed units against a shared budget and persists
// every unit through the repository.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/page"
	"github.com/ibeckermayer/threadcrawl/internal/scraper"
	"github.com/ibeckermayer/threadcrawl/internal/store"
	"github.com/ibeckermayer/threadcrawl/internal/types"
)

// State is a step of the per-article state machine.
type State string

const (
	StateInit      State = "init"
	StateResuming  State = "resuming"
	StatePaging    State = "paging"
	StateDone      State = "done"
	StateExhausted State = "exhausted"
	StateSkipped   State = "skipped"
	StateFailed    State = "failed"
)

// Terminal reports whether the article crawl has ended.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateExhausted, StateSkipped, StateFailed:
		return true
	}
	return false
}

// Repository is the storage the crawler needs. *store.Store implements it.
type Repository interface {
	AnchorSource
	ArticleByURL(ctx context.Context, url string) (*store.Article, bool, error)
	GetOrCreateArticle(ctx context.Context, meta types.ArticleMeta) (*store.Article, bool, error)
	GetOrCreateUser(ctx context.Context, raw types.RawUser) (*store.User, bool, error)
	UpdateUser(ctx context.Context, u *store.User) error
	GetOrCreatePosting(ctx context.Context, p *store.Posting) (*store.Posting, bool, error)
	UpdatePosting(ctx context.Context, p *store.Posting) error
	GetOrCreateRating(ctx context.Context, postingID, userID int64, positive bool) (*store.PostingRating, bool, error)
	UpdateRating(ctx context.Context, r *store.PostingRating) error
	Counts(ctx context.Context) (types.Counts, error)
}

// Options are the per-run knobs.
type Options struct {
	// MaxRetries is the budget every article starts with.
	MaxRetries int
	// ContinueArticle, when non-zero, resumes that article and skips all others.
	ContinueArticle int64
	// Wait is the fixed delay after every navigation.
	Wait time.Duration
}

// Crawler drives one page session over the configured articles, one at a time.
type Crawler struct {
	page       page.Page
	repo       Repository
	resume     *ResumeTracker
	topologies map[string]scraper.Topology
	opts       Options
	log        zerolog.Logger
}

// New creates a crawler. topologies maps config topology names to implementations.
func New(p page.Page, repo Repository, topologies map[string]scraper.Topology, opts Options, log zerolog.Logger) *Crawler {
	return &Crawler{
		page:       p,
		repo:       repo,
		resume:     NewResumeTracker(repo, log),
		topologies: topologies,
		opts:       opts,
		log:        log,
	}
}

// Run crawls every article in order. Article failures are recorded in the
// report and never stop the run; only ctx cancellation does.
func (c *Crawler) Run(ctx context.Context, articles []config.ArticleConfig) (types.RunReport, error) {
	report := types.RunReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	c.log.Info().Str("run_id", report.ID).Int("articles", len(articles)).Msg("Starting crawl run")

	var runErr error
	for _, a := range articles {
		result := c.crawlArticle(ctx, a)
		report.Articles = append(report.Articles, result)
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
	}

	report.FinishedAt = time.Now()
	if counts, err := c.repo.Counts(context.WithoutCancel(ctx)); err != nil {
		c.log.Warn().Err(err).Msg("Couldn't count stored rows")
	} else {
		report.Counts = counts
	}

	c.log.Info().
		Str("run_id", report.ID).
		Int("articles", report.Counts.Articles).
		Int("users", report.Counts.Users).
		Int("postings", report.Counts.Postings).
		Int("ratings", report.Counts.Ratings).
		Msgf("Completed. Processing took %ds", int(report.Duration().Seconds()))
	return report, runErr
}

// articleRun is the mutable state of one article crawl.
type articleRun struct {
	config  config.ArticleConfig
	topo    scraper.Topology
	article *store.Article
	budget  *Budget
	pageNo  int
	state   State
	report  types.ArticleReport
	log     zerolog.Logger
}

func (r *articleRun) transition(s State) {
	r.log.Debug().Str("from", string(r.state)).Str("to", string(s)).Msg("Article state")
	r.state = s
}

func (r *articleRun) fail(err error) types.ArticleReport {
	r.transition(StateFailed)
	r.log.Error().Err(err).Int("page", r.pageNo).Msg("Article failed")
	r.report.Error = err.Error()
	return r.finish()
}

func (r *articleRun) finish() types.ArticleReport {
	r.report.State = string(r.state)
	if r.budget != nil {
		r.report.BudgetLeft = r.budget.Remaining()
	}
	return r.report
}

func (c *Crawler) crawlArticle(ctx context.Context, a config.ArticleConfig) types.ArticleReport {
	run := &articleRun{
		config: a,
		state:  StateInit,
		pageNo: 1,
		report: types.ArticleReport{URL: a.URL},
		log:    c.log.With().Str("url", a.URL).Logger(),
	}

	topo, ok := c.topologies[a.Topology]
	if !ok {
		return run.fail(fmt.Errorf("unknown topology %q", a.Topology))
	}
	run.topo = topo
	run.log.Info().Str("topology", topo.Name()).Msg("Crawling postings for url")

	// INIT
	if err := c.open(ctx, run); err != nil {
		return run.fail(err)
	}
	article, err := c.ensureArticle(ctx, run)
	if err != nil {
		return run.fail(err)
	}
	run.article = article
	run.report.ArticleID = article.ID
	run.log = run.log.With().Int64("article_id", article.ID).Logger()

	if c.opts.ContinueArticle != 0 {
		if article.ID != c.opts.ContinueArticle {
			run.transition(StateSkipped)
			run.log.Info().Msg("Skipping article")
			return run.finish()
		}

		// RESUMING
		run.transition(StateResuming)
		if err := c.resumeArticle(ctx, run); err != nil {
			return run.fail(err)
		}
	}

	// PAGING
	run.transition(StatePaging)
	run.budget = NewBudget(c.opts.MaxRetries, run.log)
	if err := c.paginate(ctx, run); err != nil {
		return run.fail(err)
	}

	switch run.state {
	case StateExhausted:
		run.log.Warn().Int("max_retries", c.opts.MaxRetries).Int("page", run.pageNo).Msg("Max retries exceeded, aborting article")
	case StateDone:
		run.log.Info().Int("pages", run.report.Pages).Int("postings", run.report.Postings).Msg("Article done")
	}
	return run.finish()
}

// open navigates to the first page of the thread and prepares it.
func (c *Crawler) open(ctx context.Context, run *articleRun) error {
	if err := c.page.Navigate(ctx, run.config.URL); err != nil {
		return fmt.Errorf("failed to open %s: %w", run.config.URL, err)
	}
	if err := c.page.Wait(ctx, c.opts.Wait); err != nil {
		return err
	}
	if err := run.topo.Prepare(ctx, c.page); err != nil {
		return fmt.Errorf("failed to prepare thread: %w", err)
	}
	run.pageNo = 1
	return nil
}

// ensureArticle reads the article header only when the article is new.
func (c *Crawler) ensureArticle(ctx context.Context, run *articleRun) (*store.Article, error) {
	article, ok, err := c.repo.ArticleByURL(ctx, run.config.URL)
	if err != nil {
		return nil, err
	}
	if ok {
		return article, nil
	}

	meta, err := run.topo.ArticleMeta(ctx, c.page, run.config)
	if err != nil {
		return nil, fmt.Errorf("failed to read article metadata: %w", err)
	}
	article, created, err := c.repo.GetOrCreateArticle(ctx, meta)
	if err != nil {
		return nil, err
	}
	if created {
		run.log.Info().Int64("article_id", article.ID).Str("title", article.Title).Msg("Added new Article")
	}
	return article, nil
}

// resumeArticle fast-forwards to the page holding the anchor. When the anchor
// cannot be found the thread is reopened at page 1.
func (c *Crawler) resumeArticle(ctx context.Context, run *articleRun) error {
	anchor, ok, err := c.resume.AnchorFor(ctx, run.article.ID)
	if err != nil {
		return err
	}
	if !ok {
		run.log.Warn().Msg("Couldn't find a posting for article, starting at page 1")
		return nil
	}

	found, advanced, err := run.topo.Locate(ctx, c.page, anchor)
	if err != nil {
		return fmt.Errorf("failed to locate anchor %s: %w", anchor, err)
	}
	if !found {
		run.log.Warn().Str("anchor", anchor).Int("pages_scanned", advanced+1).Msg("Anchor posting not found, restarting from page 1")
		return c.open(ctx, run)
	}

	run.pageNo = 1 + advanced
	run.log.Info().Str("anchor", anchor).Int("page", run.pageNo).Msg("Resumed article")
	return nil
}

// paginate extracts and persists every unit, page by page, until the thread or the budget ends.
// Only structural failures are returned; exhaustion is a state.
func (c *Crawler) paginate(ctx context.Context, run *articleRun) error {
	for {
		units, err := run.topo.Units(ctx, c.page)
		if err != nil {
			return fmt.Errorf("failed to list postings on page %d: %w", run.pageNo, err)
		}
		run.report.Pages++
		run.log.Info().Int("page", run.pageNo).Int("postings", len(units)).Msg("Crawling postings on page")

		if len(units) == 0 {
			run.transition(StateDone)
			return nil
		}

		for _, u := range units {
			var raw types.RawPosting
			err := run.budget.Attempt(ctx, u.RefID, func(ctx context.Context) error {
				var err error
				if raw, err = run.topo.Extract(ctx, c.page, u); err != nil {
					return err
				}
				return c.persist(ctx, run, raw)
			})
			if errors.Is(err, ErrBudgetExhausted) {
				run.transition(StateExhausted)
				return nil
			}
			if err != nil {
				return err
			}
			run.report.Postings++
			run.report.Ratings += len(raw.Ratings)
		}

		more, err := run.topo.Next(ctx, c.page)
		if err != nil {
			return fmt.Errorf("failed to advance from page %d: %w", run.pageNo, err)
		}
		if !more {
			run.transition(StateDone)
			return nil
		}
		run.pageNo++
	}
}
