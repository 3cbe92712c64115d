package crawler_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/crawler"
	"github.com/ibeckermayer/threadcrawl/internal/page"
	"github.com/ibeckermayer/threadcrawl/internal/page/pagetest"
	"github.com/ibeckermayer/threadcrawl/internal/scraper"
	"github.com/ibeckermayer/threadcrawl/internal/scraper/scrapertest"
	"github.com/ibeckermayer/threadcrawl/internal/store"
	"github.com/ibeckermayer/threadcrawl/internal/types"
)

const (
	flatURL   = "https://www.derstandard.at/story/1/historikerbericht"
	otherURL  = "https://www.derstandard.at/story/2/experten"
	nestedURL = "https://talk.example.com/embed/stream?asset_url=1"
)

var header = scrapertest.Article{Title: "FPÖ präsentiert Historikerbericht", PubDate: "23. Dezember 2019, 10:51"}

func newStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postings.db")
	s, err := store.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func newCrawler(p page.Page, repo crawler.Repository, opts crawler.Options, log zerolog.Logger) *crawler.Crawler {
	return crawler.New(p, repo, scraper.Topologies(log, opts.Wait, time.UTC), opts, log)
}

func flatArticle(url string) config.ArticleConfig {
	return config.ArticleConfig{URL: url, Topology: config.TopologyFlat}
}

func posting(ref, user string) scrapertest.Posting {
	return scrapertest.Posting{
		RefID:     ref,
		User:      user,
		Followers: "5",
		Timestamp: "23. Dezember 2019, 11:00:00",
		Text:      "Posting " + ref,
	}
}

// twoPageThread has one posting per page; the second carries two rating events.
func twoPageThread() *pagetest.Page {
	reply := posting("2", "Bob")
	reply.ParentRefID = "1"
	reply.Negative = "1"
	reply.Positive = "1"

	return pagetest.New().
		AddThread(flatURL,
			scrapertest.FlatPage(header, true, []scrapertest.Posting{posting("1", "Alice")}, true),
			scrapertest.FlatPage(header, false, []scrapertest.Posting{reply}, false),
		).
		SetRatings("2", scrapertest.RatingLog([]scrapertest.Rating{
			{User: "Carol", Verified: true, Positive: true},
			{User: "Alice", Positive: false},
		}, true))
}

func TestRunFlatThread(t *testing.T) {
	ctx := context.Background()
	repo, _ := newStore(t)
	var buf bytes.Buffer
	c := newCrawler(twoPageThread(), repo, crawler.Options{MaxRetries: 10}, zerolog.New(&buf))

	report, err := c.Run(ctx, []config.ArticleConfig{flatArticle(flatURL)})
	require.NoError(t, err)

	require.Len(t, report.Articles, 1)
	got := report.Articles[0]
	assert.Equal(t, string(crawler.StateDone), got.State)
	assert.Equal(t, 2, got.Pages)
	assert.Equal(t, 2, got.Postings)
	assert.Equal(t, 2, got.Ratings)
	assert.Equal(t, 10, got.BudgetLeft)
	assert.Empty(t, got.Error)

	assert.Equal(t, types.Counts{Articles: 1, Users: 3, Postings: 2, Ratings: 2}, report.Counts)
	assert.NotEmpty(t, report.ID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	logs := buf.String()
	assert.Contains(t, logs, "Added new Article")
	assert.Contains(t, logs, "Completed. Processing took")
}

// tables holds every stored row, in insertion order.
type tables struct {
	Articles []store.Article
	Users    []store.User
	Postings []store.Posting
	Ratings  []store.PostingRating
}

func snapshot(t *testing.T, path string) tables {
	t.Helper()
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var tb tables
	require.NoError(t, db.Select(&tb.Articles, `SELECT article_id, article_title, article_url, article_publication_date FROM articles ORDER BY article_id`))
	require.NoError(t, db.Select(&tb.Users, `SELECT user_id, user_name, user_organization, verified, follower_count, supporter FROM users ORDER BY user_id`))
	require.NoError(t, db.Select(&tb.Postings, `SELECT posting_id, article_id, user_id, posting_ref_id, parent_posting_ref_id,
		posting_date, negative_rating, positive_rating, posting_title, posting_content FROM postings ORDER BY posting_id`))
	require.NoError(t, db.Select(&tb.Ratings, `SELECT posting_id, user_id, positive FROM posting_ratings ORDER BY posting_id, user_id`))
	return tb
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, path := newStore(t)
	articles := []config.ArticleConfig{flatArticle(flatURL)}

	first, err := newCrawler(twoPageThread(), repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).Run(ctx, articles)
	require.NoError(t, err)
	before := snapshot(t, path)
	require.Len(t, before.Postings, 2)
	require.Len(t, before.Ratings, 2)

	var buf bytes.Buffer
	second, err := newCrawler(twoPageThread(), repo, crawler.Options{MaxRetries: 10}, zerolog.New(&buf).Level(zerolog.DebugLevel)).Run(ctx, articles)
	require.NoError(t, err)

	if diff := cmp.Diff(before, snapshot(t, path)); diff != "" {
		t.Errorf("rows changed on rerun (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.Counts, second.Counts)
	assert.Equal(t, first.Articles[0].ArticleID, second.Articles[0].ArticleID)
	logs := buf.String()
	assert.NotContains(t, logs, "Added new")
	assert.Contains(t, logs, "Updated Posting")
	assert.Contains(t, logs, "Updated PostingRating")
}

func TestRunLogsEntityChangesAtInfo(t *testing.T) {
	repo, _ := newStore(t)
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)

	_, err := newCrawler(twoPageThread(), repo, crawler.Options{MaxRetries: 10}, log).
		Run(context.Background(), []config.ArticleConfig{flatArticle(flatURL)})
	require.NoError(t, err)

	logs := buf.String()
	for _, line := range []string{"Added new Article", "Added new User", "Added new Posting", "Added new PostingRating"} {
		assert.Contains(t, logs, line)
	}
	// Carol only appears as a rater; her creation is debug detail.
	assert.NotContains(t, logs, `"user":"Carol"`)
}

func TestRunNestedThreadKeepsParentChain(t *testing.T) {
	ctx := context.Background()
	repo, path := newStore(t)

	comments := []scrapertest.Comment{
		{
			RefID: "a", Author: "Anna", Date: "12/23/2019, 11:00:00 AM", Content: "top", Up: "3", Down: "1",
			Replies: []scrapertest.Comment{
				{
					RefID: "a1", Author: "Bert", Date: "12/23/2019, 11:10:00 AM", Content: "reply",
					Replies: []scrapertest.Comment{
						{RefID: "a1x", Author: "Carl", Date: "12/23/2019, 1:20:00 PM", Content: "deep"},
					},
				},
			},
		},
		{RefID: "b", Date: "12/24/2019, 9:00:00 AM", Content: "orphaned author"},
	}
	p := pagetest.New().AddThread(nestedURL, scrapertest.NestedThread(comments)...)
	article := config.ArticleConfig{
		URL:         nestedURL,
		Topology:    config.TopologyNested,
		Title:       "Coral thread",
		PublishedAt: time.Date(2019, 12, 23, 9, 0, 0, 0, time.UTC),
	}

	report, err := newCrawler(p, repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).Run(ctx, []config.ArticleConfig{article})
	require.NoError(t, err)
	assert.Equal(t, string(crawler.StateDone), report.Articles[0].State)
	assert.Equal(t, 1, report.Articles[0].Pages)
	assert.Equal(t, types.Counts{Articles: 1, Users: 4, Postings: 4, Ratings: 0}, report.Counts)

	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	type link struct {
		Ref    string  `db:"posting_ref_id"`
		Parent *string `db:"parent_posting_ref_id"`
	}
	var links []link
	require.NoError(t, db.Select(&links, `SELECT posting_ref_id, parent_posting_ref_id FROM postings ORDER BY posting_id`))

	parents := make(map[string]string)
	var order []string
	for _, l := range links {
		order = append(order, l.Ref)
		if l.Parent != nil {
			parents[l.Ref] = *l.Parent
		}
	}
	assert.Equal(t, []string{"a", "a1", "a1x", "b"}, order)
	assert.Equal(t, map[string]string{"a1": "a", "a1x": "a1"}, parents)
}

func TestRunResumesFromAnchor(t *testing.T) {
	ctx := context.Background()
	repo, _ := newStore(t)

	first, err := newCrawler(twoPageThread(), repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).
		Run(ctx, []config.ArticleConfig{flatArticle(flatURL)})
	require.NoError(t, err)
	articleID := first.Articles[0].ArticleID

	var buf bytes.Buffer
	p := twoPageThread()
	opts := crawler.Options{MaxRetries: 10, ContinueArticle: articleID}
	report, err := newCrawler(p, repo, opts, zerolog.New(&buf)).Run(ctx, []config.ArticleConfig{flatArticle(flatURL)})
	require.NoError(t, err)

	got := report.Articles[0]
	assert.Equal(t, string(crawler.StateDone), got.State)
	assert.Equal(t, 1, got.Pages, "crawl continues on the page holding the anchor")
	assert.Equal(t, 1, got.Postings)
	assert.Equal(t, []string{flatURL}, p.Navigations)
	assert.Contains(t, buf.String(), "Resumed article")
	assert.Equal(t, first.Counts, report.Counts)
}

func TestRunResumeRestartsWhenAnchorIsGone(t *testing.T) {
	ctx := context.Background()
	repo, _ := newStore(t)

	old := pagetest.New().AddThread(flatURL, scrapertest.FlatPage(header, false, []scrapertest.Posting{posting("deleted", "Eve")}, false))
	first, err := newCrawler(old, repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).
		Run(ctx, []config.ArticleConfig{flatArticle(flatURL)})
	require.NoError(t, err)

	var buf bytes.Buffer
	p := twoPageThread()
	opts := crawler.Options{MaxRetries: 10, ContinueArticle: first.Articles[0].ArticleID}
	report, err := newCrawler(p, repo, opts, zerolog.New(&buf)).Run(ctx, []config.ArticleConfig{flatArticle(flatURL)})
	require.NoError(t, err)

	got := report.Articles[0]
	assert.Equal(t, string(crawler.StateDone), got.State)
	assert.Equal(t, 2, got.Pages)
	assert.Equal(t, 2, got.Postings)
	assert.Equal(t, []string{flatURL, flatURL}, p.Navigations, "thread is reopened at page 1")
	assert.Contains(t, buf.String(), "Anchor posting not found")
	assert.Equal(t, 3, report.Counts.Postings)
}

func TestRunSkipsArticlesOtherThanContinued(t *testing.T) {
	ctx := context.Background()
	repo, _ := newStore(t)

	threads := func() *pagetest.Page {
		return pagetest.New().
			AddThread(flatURL, scrapertest.FlatPage(header, false, []scrapertest.Posting{posting("1", "Alice")}, false)).
			AddThread(otherURL, scrapertest.FlatPage(header, false, []scrapertest.Posting{posting("9", "Zoe")}, false))
	}
	articles := []config.ArticleConfig{flatArticle(flatURL), flatArticle(otherURL)}

	first, err := newCrawler(threads(), repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).Run(ctx, articles)
	require.NoError(t, err)

	opts := crawler.Options{MaxRetries: 10, ContinueArticle: first.Articles[1].ArticleID}
	report, err := newCrawler(threads(), repo, opts, zerolog.Nop()).Run(ctx, articles)
	require.NoError(t, err)

	require.Len(t, report.Articles, 2)
	assert.Equal(t, string(crawler.StateSkipped), report.Articles[0].State)
	assert.Equal(t, 0, report.Articles[0].Pages)
	assert.Equal(t, string(crawler.StateDone), report.Articles[1].State)
}

func TestRunIsolatesFailedArticle(t *testing.T) {
	ctx := context.Background()
	repo, _ := newStore(t)
	p := pagetest.New().AddThread(flatURL, scrapertest.FlatPage(header, false, []scrapertest.Posting{posting("1", "Alice")}, false))

	articles := []config.ArticleConfig{flatArticle("https://unreachable.example.com/"), flatArticle(flatURL)}
	report, err := newCrawler(p, repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).Run(ctx, articles)
	require.NoError(t, err)

	require.Len(t, report.Articles, 2)
	assert.Equal(t, string(crawler.StateFailed), report.Articles[0].State)
	assert.Contains(t, report.Articles[0].Error, "failed to open")
	assert.Equal(t, string(crawler.StateDone), report.Articles[1].State)
	assert.Equal(t, 1, report.Counts.Articles)
}

func TestRunUnknownTopologyFails(t *testing.T) {
	repo, _ := newStore(t)
	report, err := newCrawler(pagetest.New(), repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).
		Run(context.Background(), []config.ArticleConfig{{URL: flatURL, Topology: "threaded"}})
	require.NoError(t, err)
	assert.Equal(t, string(crawler.StateFailed), report.Articles[0].State)
	assert.Contains(t, report.Articles[0].Error, "unknown topology")
}

// The budget lives for one article of one run: the next article, and any later
// run, starts with a full budget again. Whether it should span runs is undecided.
func TestRunExhaustsBudgetPerArticle(t *testing.T) {
	ctx := context.Background()
	repo, _ := newStore(t)

	broken := posting("1", "Alice")
	broken.Timestamp = "gestern"
	p := pagetest.New().
		AddThread(flatURL, scrapertest.FlatPage(header, false, []scrapertest.Posting{broken, posting("2", "Bob")}, false)).
		AddThread(otherURL, scrapertest.FlatPage(header, false, []scrapertest.Posting{posting("9", "Zoe")}, false))

	var buf bytes.Buffer
	opts := crawler.Options{MaxRetries: 3}
	report, err := newCrawler(p, repo, opts, zerolog.New(&buf)).Run(ctx, []config.ArticleConfig{flatArticle(flatURL), flatArticle(otherURL)})
	require.NoError(t, err)

	exhausted := report.Articles[0]
	assert.Equal(t, string(crawler.StateExhausted), exhausted.State)
	assert.Equal(t, 0, exhausted.BudgetLeft)
	assert.Equal(t, 0, exhausted.Postings, "no unit after the failing one is attempted")

	next := report.Articles[1]
	assert.Equal(t, string(crawler.StateDone), next.State)
	assert.Equal(t, 3, next.BudgetLeft)
	assert.Equal(t, 1, report.Counts.Postings)

	logs := buf.String()
	assert.Contains(t, logs, "Max retries exceeded")
	assert.Contains(t, logs, `"retries_left":0`)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	repo, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newCrawler(twoPageThread(), repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).
		Run(ctx, []config.ArticleConfig{flatArticle(flatURL), flatArticle(otherURL)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Articles, 1)
	assert.Equal(t, string(crawler.StateFailed), report.Articles[0].State)
}

type mockTopology struct {
	mock.Mock
}

func (m *mockTopology) Name() string { return "mock" }

func (m *mockTopology) Prepare(ctx context.Context, p page.Page) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockTopology) ArticleMeta(ctx context.Context, p page.Page, a config.ArticleConfig) (types.ArticleMeta, error) {
	args := m.Called(ctx, p, a)
	return args.Get(0).(types.ArticleMeta), args.Error(1)
}

func (m *mockTopology) Locate(ctx context.Context, p page.Page, refID string) (bool, int, error) {
	args := m.Called(ctx, p, refID)
	return args.Bool(0), args.Int(1), args.Error(2)
}

func (m *mockTopology) Units(ctx context.Context, p page.Page) ([]scraper.Unit, error) {
	args := m.Called(ctx, p)
	return args.Get(0).([]scraper.Unit), args.Error(1)
}

func (m *mockTopology) Extract(ctx context.Context, p page.Page, u scraper.Unit) (types.RawPosting, error) {
	args := m.Called(ctx, p, u)
	return args.Get(0).(types.RawPosting), args.Error(1)
}

func (m *mockTopology) Next(ctx context.Context, p page.Page) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

func TestRunRetriesSameUnitWithoutReload(t *testing.T) {
	ctx := context.Background()
	repo, _ := newStore(t)
	p := pagetest.New().AddThread(flatURL, "<html><body></body></html>")

	unit := scraper.Unit{RefID: "u1"}
	raw := types.RawPosting{
		RefID:     "u1",
		Author:    types.RawUser{Name: "Alice"},
		Timestamp: time.Date(2019, 12, 23, 11, 0, 0, 0, time.UTC),
		Content:   "hallo",
	}

	topo := &mockTopology{}
	topo.On("Prepare", mock.Anything, mock.Anything).Return(nil)
	topo.On("ArticleMeta", mock.Anything, mock.Anything, mock.Anything).
		Return(types.ArticleMeta{Title: "t", URL: flatURL, PublishedAt: raw.Timestamp}, nil)
	topo.On("Units", mock.Anything, mock.Anything).Return([]scraper.Unit{unit}, nil)
	topo.On("Extract", mock.Anything, mock.Anything, unit).Return(types.RawPosting{}, errors.New("stale element reference")).Once()
	topo.On("Extract", mock.Anything, mock.Anything, unit).Return(raw, nil).Once()
	topo.On("Next", mock.Anything, mock.Anything).Return(false, nil)

	c := crawler.New(p, repo, map[string]scraper.Topology{"mock": topo}, crawler.Options{MaxRetries: 5}, zerolog.Nop())
	report, err := c.Run(ctx, []config.ArticleConfig{{URL: flatURL, Topology: "mock"}})
	require.NoError(t, err)

	topo.AssertExpectations(t)
	topo.AssertNumberOfCalls(t, "Extract", 2)
	topo.AssertNotCalled(t, "Locate", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{flatURL}, p.Navigations)
	assert.Equal(t, string(crawler.StateDone), report.Articles[0].State)
	assert.Equal(t, 4, report.Articles[0].BudgetLeft)
	assert.Equal(t, 1, report.Counts.Postings)
}

func TestRunEmptyThreadIsDone(t *testing.T) {
	repo, _ := newStore(t)
	p := pagetest.New().AddThread(flatURL, scrapertest.FlatPage(header, false, nil, true))

	report, err := newCrawler(p, repo, crawler.Options{MaxRetries: 10}, zerolog.Nop()).
		Run(context.Background(), []config.ArticleConfig{flatArticle(flatURL)})
	require.NoError(t, err)
	assert.Equal(t, string(crawler.StateDone), report.Articles[0].State)
	assert.Equal(t, 1, report.Articles[0].Pages)
	assert.Equal(t, types.Counts{Articles: 1}, report.Counts)
}
