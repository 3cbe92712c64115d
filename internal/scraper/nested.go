package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/page"
	"github.com/ibeckermayer/threadcrawl/internal/types"
)

// maxLoadMore caps load-more clicks in case the control never disappears.
const maxLoadMore = 1000

// RecursiveNested reads Coral Talk embeds: every comment wrapper may contain
// wrappers one level deeper. The whole thread lives on a single page once all
// "load more" controls have been clicked.
type RecursiveNested struct {
	log  zerolog.Logger
	wait time.Duration
	loc  *time.Location
}

var _ Topology = (*RecursiveNested)(nil)

func NewRecursiveNested(log zerolog.Logger, wait time.Duration, loc *time.Location) *RecursiveNested {
	return &RecursiveNested{
		log:  log.With().Str("topology", config.TopologyNested).Logger(),
		wait: wait,
		loc:  loc,
	}
}

func (n *RecursiveNested) Name() string {
	return config.TopologyNested
}

// Prepare clicks "load more" until every top-level comment is rendered.
func (n *RecursiveNested) Prepare(ctx context.Context, p page.Page) error {
	for clicks := 0; clicks < maxLoadMore; clicks++ {
		more, ok, err := p.Find(ctx, LoadMore)
		if err != nil {
			return err
		}
		if !ok {
			n.log.Debug().Int("clicks", clicks).Msg("All comments loaded")
			return nil
		}
		if err := more.Click(ctx); err != nil {
			return fmt.Errorf("failed to load more comments: %w", err)
		}
		n.log.Debug().Msg("Clicked load more")
		if err := p.Wait(ctx, n.wait); err != nil {
			return err
		}
	}
	n.log.Warn().Int("clicks", maxLoadMore).Msg("Load more control did not disappear")
	return nil
}

// ArticleMeta comes from config; the embed carries no article header.
func (n *RecursiveNested) ArticleMeta(ctx context.Context, p page.Page, article config.ArticleConfig) (types.ArticleMeta, error) {
	if article.Title == "" || article.PublishedAt.IsZero() {
		return types.ArticleMeta{}, fmt.Errorf("article %s needs title and published_at in config", article.URL)
	}
	return types.ArticleMeta{
		Title:       article.Title,
		URL:         article.URL,
		PublishedAt: article.PublishedAt,
	}, nil
}

// Locate only checks the current page; there is no pagination to advance.
func (n *RecursiveNested) Locate(ctx context.Context, p page.Page, refID string) (bool, int, error) {
	found, err := present(ctx, p, CommentByRef(refID))
	return found, 0, err
}

type frame struct {
	el     page.Element
	level  int
	parent *string
}

// Units walks the reply tree depth-first in document order with an explicit stack.
func (n *RecursiveNested) Units(ctx context.Context, p page.Page) ([]Unit, error) {
	roots, err := p.FindAll(ctx, CommentLevel(0))
	if err != nil {
		return nil, err
	}

	stack := make([]frame, 0, len(roots))
	stack = pushReversed(stack, roots, 0, nil)

	var units []Unit
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		refID, ok, err := f.el.Attr(ctx, CommentRefAttr)
		if err != nil {
			return nil, err
		}
		if !ok || refID == "" {
			return nil, fmt.Errorf("comment at level %d has no id", f.level)
		}
		units = append(units, Unit{RefID: refID, ParentRefID: f.parent, Level: f.level})

		children, err := f.el.FindAll(ctx, CommentLevel(f.level+1))
		if err != nil {
			return nil, err
		}
		if len(children) > 0 {
			n.log.Debug().Str("posting", refID).Int("replies", len(children)).Msg("Crawling replies")
		}
		stack = pushReversed(stack, children, f.level+1, strPtr(refID))
	}
	return units, nil
}

// pushReversed pushes els so that the first one is popped first.
func pushReversed(stack []frame, els []page.Element, level int, parent *string) []frame {
	for i := len(els) - 1; i >= 0; i-- {
		stack = append(stack, frame{el: els[i], level: level, parent: parent})
	}
	return stack
}

// Extract re-locates the comment by reference id and reads only its own body;
// the wrapper also holds every reply.
func (n *RecursiveNested) Extract(ctx context.Context, p page.Page, u Unit) (types.RawPosting, error) {
	wrapper, ok, err := p.Find(ctx, CommentByRef(u.RefID))
	if err != nil {
		return types.RawPosting{}, err
	}
	if !ok {
		return types.RawPosting{}, fmt.Errorf("comment %s is no longer on the page", u.RefID)
	}
	body, ok, err := wrapper.Find(ctx, CommentBody(u.Level))
	if err != nil {
		return types.RawPosting{}, err
	}
	if !ok {
		return types.RawPosting{}, fmt.Errorf("comment %s has no %s", u.RefID, CommentBody(u.Level))
	}
	log := n.log.With().Str("posting", u.RefID).Logger()

	name, ok, err := optionalText(ctx, body, CommentAuthor)
	if err != nil {
		return types.RawPosting{}, err
	}
	if !ok {
		log.Debug().Msg("No user name found, assuming user was deleted")
		name = types.DeletedUser
	}

	dateEl, ok, err := body.Find(ctx, CommentDate)
	if err != nil {
		return types.RawPosting{}, err
	}
	if !ok {
		return types.RawPosting{}, fmt.Errorf("element %s not found", CommentDate)
	}
	stamp, ok, err := dateEl.Attr(ctx, CommentDateAttr)
	if err != nil {
		return types.RawPosting{}, err
	}
	if !ok {
		return types.RawPosting{}, fmt.Errorf("comment date has no %s attribute", CommentDateAttr)
	}
	posted, err := parseCommentDate(stamp, n.loc)
	if err != nil {
		return types.RawPosting{}, err
	}

	content, err := requiredText(ctx, body, CommentContent)
	if err != nil {
		return types.RawPosting{}, err
	}
	positive, err := count(ctx, log, body, CommentUpvotes, "positive_rating")
	if err != nil {
		return types.RawPosting{}, err
	}
	negative, err := count(ctx, log, body, CommentDownvote, "negative_rating")
	if err != nil {
		return types.RawPosting{}, err
	}

	return types.RawPosting{
		RefID:       u.RefID,
		ParentRefID: u.ParentRefID,
		Author:      types.RawUser{Name: name},
		Timestamp:   posted,
		Negative:    negative,
		Positive:    positive,
		Content:     content,
	}, nil
}

// Next always reports the end of the thread.
func (n *RecursiveNested) Next(ctx context.Context, p page.Page) (bool, error) {
	return false, nil
}
