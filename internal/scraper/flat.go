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

// FlatPaginated reads derStandard style forums: one list of postings per page
// and a next control that becomes disabled on the last page.
type FlatPaginated struct {
	log  zerolog.Logger
	wait time.Duration
	loc  *time.Location
}

var _ Topology = (*FlatPaginated)(nil)

// NewFlatPaginated creates the flat topology. wait is the fixed delay after every click.
func NewFlatPaginated(log zerolog.Logger, wait time.Duration, loc *time.Location) *FlatPaginated {
	return &FlatPaginated{
		log:  log.With().Str("topology", config.TopologyFlat).Logger(),
		wait: wait,
		loc:  loc,
	}
}

func (f *FlatPaginated) Name() string {
	return config.TopologyFlat
}

// Prepare accepts the privacy wall if it is shown.
func (f *FlatPaginated) Prepare(ctx context.Context, p page.Page) error {
	shown, err := present(ctx, p, ConsentWall)
	if err != nil {
		return err
	}
	if !shown {
		f.log.Debug().Msg("No privacywall was displayed")
		return nil
	}

	accept, ok, err := p.Find(ctx, ConsentAccept)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("privacywall shown without %s control", ConsentAccept)
	}
	if err := accept.Click(ctx); err != nil {
		return fmt.Errorf("failed to accept privacywall: %w", err)
	}
	f.log.Debug().Msg("Cookies accepted")
	return p.Wait(ctx, f.wait)
}

// ArticleMeta reads title and publication date from the article header.
func (f *FlatPaginated) ArticleMeta(ctx context.Context, p page.Page, article config.ArticleConfig) (types.ArticleMeta, error) {
	title, err := requiredText(ctx, p, ArticleTitle)
	if err != nil {
		return types.ArticleMeta{}, err
	}
	pubdate, err := requiredText(ctx, p, ArticlePubDate)
	if err != nil {
		return types.ArticleMeta{}, err
	}
	published, err := parseArticleDate(pubdate, f.loc)
	if err != nil {
		return types.ArticleMeta{}, err
	}
	return types.ArticleMeta{Title: title, URL: article.URL, PublishedAt: published}, nil
}

func (f *FlatPaginated) Locate(ctx context.Context, p page.Page, refID string) (bool, int, error) {
	advanced := 0
	for {
		found, err := present(ctx, p, PostingByRef(refID))
		if err != nil {
			return false, advanced, err
		}
		if found {
			return true, advanced, nil
		}
		f.log.Debug().Str("posting", refID).Int("pages_advanced", advanced).Msg("Posting not on this page")

		moved, err := f.Next(ctx, p)
		if err != nil || !moved {
			return false, advanced, err
		}
		advanced++
	}
}

func (f *FlatPaginated) Units(ctx context.Context, p page.Page) ([]Unit, error) {
	postings, err := p.FindAll(ctx, PostingItem)
	if err != nil {
		return nil, err
	}

	units := make([]Unit, 0, len(postings))
	for _, el := range postings {
		refID, ok, err := el.Attr(ctx, PostingRefAttr)
		if err != nil {
			return nil, err
		}
		if !ok || refID == "" {
			f.log.Warn().Msg("Skipping posting without reference id")
			continue
		}

		u := Unit{RefID: refID}
		if parent, ok, err := el.Attr(ctx, PostingParentAttr); err != nil {
			return nil, err
		} else if ok && parent != "" {
			u.ParentRefID = strPtr(parent)
			u.Level = 1
		}
		units = append(units, u)
	}
	return units, nil
}

// Extract re-locates the posting by reference id so each attempt reads fresh nodes.
func (f *FlatPaginated) Extract(ctx context.Context, p page.Page, u Unit) (types.RawPosting, error) {
	el, ok, err := p.Find(ctx, PostingByRef(u.RefID))
	if err != nil {
		return types.RawPosting{}, err
	}
	if !ok {
		return types.RawPosting{}, fmt.Errorf("posting %s is no longer on the page", u.RefID)
	}
	log := f.log.With().Str("posting", u.RefID).Logger()

	author, err := f.author(ctx, log, el)
	if err != nil {
		return types.RawPosting{}, err
	}

	stamp, err := requiredText(ctx, el, PostingTimestamp)
	if err != nil {
		return types.RawPosting{}, err
	}
	posted, err := parsePostingDate(stamp, f.loc)
	if err != nil {
		return types.RawPosting{}, err
	}

	negative, err := count(ctx, log, el, PostingNegative, "negative_rating")
	if err != nil {
		return types.RawPosting{}, err
	}
	positive, err := count(ctx, log, el, PostingPositive, "positive_rating")
	if err != nil {
		return types.RawPosting{}, err
	}

	raw := types.RawPosting{
		RefID:       u.RefID,
		ParentRefID: u.ParentRefID,
		Author:      author,
		Timestamp:   posted,
		Negative:    negative,
		Positive:    positive,
	}

	if title, ok, err := optionalText(ctx, el, PostingTitle); err != nil {
		return types.RawPosting{}, err
	} else if ok && title != "" {
		raw.Title = strPtr(title)
	}

	if raw.Content, err = requiredText(ctx, el, PostingText); err != nil {
		return types.RawPosting{}, err
	}

	// The rating log is expensive to open; skip it when nobody rated.
	if raw.HasRatings() {
		if raw.Ratings, err = f.ratings(ctx, log, p, el); err != nil {
			return types.RawPosting{}, err
		}
	}

	log.Debug().
		Str("user", author.Name).
		Int("negative", negative).
		Int("positive", positive).
		Int("ratings", len(raw.Ratings)).
		Msg("Extracted posting")
	return raw, nil
}

func (f *FlatPaginated) author(ctx context.Context, log zerolog.Logger, el page.Element) (types.RawUser, error) {
	var u types.RawUser

	name, ok, err := optionalText(ctx, el, UserName)
	if err != nil {
		return u, err
	}
	if !ok {
		log.Debug().Msg("No user name found, assuming user was deleted")
		name = types.DeletedUser
	}
	u.Name = name

	if u.Verified, err = present(ctx, el, UserVerified); err != nil {
		return u, err
	}
	if u.Supporter, err = present(ctx, el, UserSupporter); err != nil {
		return u, err
	}
	if org, ok, err := optionalText(ctx, el, UserOrganization); err != nil {
		return u, err
	} else if ok {
		u.Organization = strPtr(org)
	}

	followers := 0
	text, ok, err := optionalText(ctx, el, UserFollowers)
	switch {
	case err != nil:
		return u, err
	case !ok:
		log.Warn().Str("user", name).Msg("Couldn't detect follower count, assuming 0")
	default:
		if followers, err = parseCount(text); err != nil {
			log.Warn().Err(err).Str("user", name).Msg("Couldn't parse follower count, assuming 0")
			followers = 0
		}
	}
	u.FollowerCount = &followers

	return u, nil
}

// ratings opens the rating log of a posting, expands it fully, reads it and closes it again.
func (f *FlatPaginated) ratings(ctx context.Context, log zerolog.Logger, p page.Page, posting page.Element) ([]types.RawRating, error) {
	toggle, ok, err := posting.Find(ctx, RatingsToggle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("rating control %s not found", RatingsToggle)
	}

	// Ratings are sometimes outside the viewport and therefore not clickable.
	if err := toggle.ScrollIntoView(ctx); err != nil {
		return nil, err
	}

	// A failed earlier attempt may have left the log open.
	open, err := present(ctx, p, RatingsLog)
	if err != nil {
		return nil, err
	}
	if !open {
		if err := toggle.Click(ctx); err != nil {
			return nil, fmt.Errorf("failed to open rating log: %w", err)
		}
		if err := p.Wait(ctx, f.wait); err != nil {
			return nil, err
		}
	}

	for {
		more, ok, err := p.Find(ctx, RatingsShowMore)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := more.Click(ctx); err != nil {
			return nil, fmt.Errorf("failed to expand rating log: %w", err)
		}
		if err := p.Wait(ctx, f.wait); err != nil {
			return nil, err
		}
	}

	entries, err := p.FindAll(ctx, RatingsEntry)
	if err != nil {
		return nil, err
	}

	ratings := make([]types.RawRating, 0, len(entries))
	for _, entry := range entries {
		var r types.RawRating

		name, ok, err := optionalText(ctx, entry, RatingsUserName)
		if err != nil {
			return nil, err
		}
		if !ok {
			name = types.DeletedUser
		}
		r.UserName = name

		rate, _, err := entry.Attr(ctx, RatingsRateAttr)
		if err != nil {
			return nil, err
		}
		r.Positive = rate == "positive"

		if r.Verified, err = present(ctx, entry, RatingsVerified); err != nil {
			return nil, err
		}

		log.Debug().Str("user", r.UserName).Bool("positive", r.Positive).Msg("User rated posting")
		ratings = append(ratings, r)
	}

	if err := toggle.Click(ctx); err != nil {
		return nil, fmt.Errorf("failed to close rating log: %w", err)
	}
	return ratings, nil
}

// Next clicks the next-page control unless it is missing or disabled.
func (f *FlatPaginated) Next(ctx context.Context, p page.Page) (bool, error) {
	next, ok, err := p.Find(ctx, NextPage)
	if err != nil || !ok {
		return false, err
	}
	enabled, err := next.Enabled(ctx)
	if err != nil || !enabled {
		return false, err
	}
	if err := next.Click(ctx); err != nil {
		return false, fmt.Errorf("failed to open next page: %w", err)
	}
	return true, p.Wait(ctx, f.wait)
}
