package crawler

import (
	"context"

	"github.com/rs/zerolog"
)

// AnchorSource finds the most recently stored posting of an article.
type AnchorSource interface {
	AnchorFor(ctx context.Context, articleID int64) (string, bool, error)
}

// ResumeTracker supplies the anchor a resumed crawl fast-forwards to.
// The anchor is advisory: the live thread may no longer contain it.
type ResumeTracker struct {
	anchors AnchorSource
	log     zerolog.Logger
}

func NewResumeTracker(anchors AnchorSource, log zerolog.Logger) *ResumeTracker {
	return &ResumeTracker{anchors: anchors, log: log}
}

// AnchorFor returns the reference id of the article's last stored posting.
func (r *ResumeTracker) AnchorFor(ctx context.Context, articleID int64) (string, bool, error) {
	refID, ok, err := r.anchors.AnchorFor(ctx, articleID)
	if err != nil {
		return "", false, err
	}
	if ok {
		r.log.Info().Int64("article_id", articleID).Str("anchor", refID).Msg("Last crawled posting")
	}
	return refID, ok, nil
}
