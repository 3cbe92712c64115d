package store

import (
	"time"

	"github.com/ibeckermayer/threadcrawl/internal/types"
)

// Article is a published article whose discussion thread is crawled.
// Rows are created once per url and never changed afterwards.
type Article struct {
	ID          int64     `db:"article_id" json:"article_id"`
	Title       string    `db:"article_title" json:"article_title"`
	URL         string    `db:"article_url" json:"article_url"`
	PublishedAt time.Time `db:"article_publication_date" json:"article_publication_date"`
}

// User is identified by its display name.
type User struct {
	ID            int64   `db:"user_id" json:"user_id"`
	Name          string  `db:"user_name" json:"user_name"`
	Organization  *string `db:"user_organization" json:"user_organization,omitempty"`
	Verified      bool    `db:"verified" json:"verified"`
	FollowerCount *int    `db:"follower_count" json:"follower_count,omitempty"`
	Supporter     bool    `db:"supporter" json:"supporter"`
}

// Posting is keyed by the site-assigned reference id. ParentRefID is a soft link
// to another posting's RefID and may dangle.
type Posting struct {
	ID          int64     `db:"posting_id" json:"posting_id"`
	ArticleID   int64     `db:"article_id" json:"article_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	RefID       string    `db:"posting_ref_id" json:"posting_ref_id"`
	ParentRefID *string   `db:"parent_posting_ref_id" json:"parent_posting_ref_id,omitempty"`
	PostedAt    time.Time `db:"posting_date" json:"posting_date"`
	Negative    int       `db:"negative_rating" json:"negative_rating"`
	Positive    int       `db:"positive_rating" json:"positive_rating"`
	Title       *string   `db:"posting_title" json:"posting_title,omitempty"`
	Content     string    `db:"posting_content" json:"posting_content"`
}

// PostingRating is one user's rating of one posting.
type PostingRating struct {
	PostingID int64 `db:"posting_id" json:"posting_id"`
	UserID    int64 `db:"user_id" json:"user_id"`
	Positive  bool  `db:"positive" json:"positive"`
}

// NewUser builds the initial row for a first sighting.
func NewUser(raw types.RawUser) *User {
	return &User{
		Name:          raw.Name,
		Organization:  raw.Organization,
		Verified:      raw.Verified,
		FollowerCount: raw.FollowerCount,
		Supporter:     raw.Supporter,
	}
}

// Refresh applies a later sighting of the same user. The follower count only grows.
func (u *User) Refresh(raw types.RawUser) {
	u.Verified = raw.Verified
	u.FollowerCount = MaxFollowers(u.FollowerCount, raw.FollowerCount)
	u.Organization = raw.Organization
	u.Supporter = raw.Supporter
}

// MaxFollowers returns the larger count, with nil below every known value.
func MaxFollowers(stored, observed *int) *int {
	if observed == nil {
		return stored
	}
	if stored == nil || *observed > *stored {
		v := *observed
		return &v
	}
	return stored
}

// NewPosting builds the initial row for a first sighting.
func NewPosting(articleID, userID int64, raw types.RawPosting) *Posting {
	p := &Posting{
		ArticleID: articleID,
		UserID:    userID,
		RefID:     raw.RefID,
	}
	p.Refresh(raw)
	return p
}

// Refresh overwrites the mutable fields. Article and author stay as first seen.
func (p *Posting) Refresh(raw types.RawPosting) {
	p.ParentRefID = raw.ParentRefID
	p.PostedAt = raw.Timestamp
	p.Negative = raw.Negative
	p.Positive = raw.Positive
	p.Title = raw.Title
	p.Content = raw.Content
}
