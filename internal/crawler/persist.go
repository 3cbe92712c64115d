package crawler

import (
	"context"

	"github.com/ibeckermayer/threadcrawl/internal/store"
	"github.com/ibeckermayer/threadcrawl/internal/types"
)

// persist writes one extracted unit: author, posting, then every rater and rating.
// Each write commits on its own, so a retry after a partial write converges.
func (c *Crawler) persist(ctx context.Context, run *articleRun, raw types.RawPosting) error {
	author, err := c.persistAuthor(ctx, run, raw.Author)
	if err != nil {
		return err
	}

	posting, created, err := c.repo.GetOrCreatePosting(ctx, store.NewPosting(run.article.ID, author.ID, raw))
	if err != nil {
		return err
	}
	if created {
		run.log.Info().Int64("posting_id", posting.ID).Str("ref_id", posting.RefID).Msg("Added new Posting")
	} else {
		posting.Refresh(raw)
		if err := c.repo.UpdatePosting(ctx, posting); err != nil {
			return err
		}
		run.log.Info().Int64("posting_id", posting.ID).Str("ref_id", posting.RefID).Msg("Updated Posting")
	}

	for _, r := range raw.Ratings {
		if err := c.persistRating(ctx, run, posting, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) persistAuthor(ctx context.Context, run *articleRun, raw types.RawUser) (*store.User, error) {
	user, created, err := c.repo.GetOrCreateUser(ctx, raw)
	if err != nil {
		return nil, err
	}
	if created {
		run.log.Info().Int64("user_id", user.ID).Str("user", user.Name).Msg("Added new User")
		return user, nil
	}

	user.Refresh(raw)
	if err := c.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	run.log.Info().Int64("user_id", user.ID).Str("user", user.Name).Msg("Updated User")
	return user, nil
}

// persistRating stores one rating event. A rater is only known by name and
// verification, so the rest of an existing user row is left alone.
func (c *Crawler) persistRating(ctx context.Context, run *articleRun, posting *store.Posting, r types.RawRating) error {
	rater, created, err := c.repo.GetOrCreateUser(ctx, types.RawUser{Name: r.UserName, Verified: r.Verified})
	if err != nil {
		return err
	}
	if created {
		run.log.Debug().Int64("user_id", rater.ID).Str("user", rater.Name).Msg("Added new User")
	} else if rater.Verified != r.Verified {
		rater.Verified = r.Verified
		if err := c.repo.UpdateUser(ctx, rater); err != nil {
			return err
		}
		run.log.Info().Int64("user_id", rater.ID).Str("user", rater.Name).Msg("Updated User")
	}

	rating, created, err := c.repo.GetOrCreateRating(ctx, posting.ID, rater.ID, r.Positive)
	if err != nil {
		return err
	}
	if created {
		run.log.Info().Int64("posting_id", posting.ID).Int64("user_id", rater.ID).Bool("positive", r.Positive).Msg("Added new PostingRating")
		return nil
	}

	rating.Positive = r.Positive
	if err := c.repo.UpdateRating(ctx, rating); err != nil {
		return err
	}
	run.log.Info().Int64("posting_id", posting.ID).Int64("user_id", rater.ID).Bool("positive", r.Positive).Msg("Updated PostingRating")
	return nil
}
