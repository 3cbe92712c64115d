package types

import "time"

// DeletedUser is the author name recorded when a posting's author account no longer exists.
const DeletedUser = "<DELETED USER>"

// RawUser is the author information read from a posting.
type RawUser struct {
	Name          string  `json:"name"`
	Verified      bool    `json:"verified"`
	FollowerCount *int    `json:"follower_count,omitempty"` // nil when the page shows none
	Organization  *string `json:"organization,omitempty"`
	Supporter     bool    `json:"supporter"`
}

// RawRating is one identified user's rating event from a posting's rating log.
type RawRating struct {
	UserName string `json:"user_name"`
	Verified bool   `json:"verified"`
	Positive bool   `json:"positive"`
}

// RawPosting is one extracted unit, not yet persisted.
type RawPosting struct {
	RefID       string      `json:"ref_id"`
	ParentRefID *string     `json:"parent_ref_id,omitempty"`
	Author      RawUser     `json:"author"`
	Timestamp   time.Time   `json:"timestamp"`
	Negative    int         `json:"negative"`
	Positive    int         `json:"positive"`
	Title       *string     `json:"title,omitempty"`
	Content     string      `json:"content"`
	Ratings     []RawRating `json:"ratings,omitempty"`
}

// HasRatings reports whether the aggregate counts are non-zero.
func (p RawPosting) HasRatings() bool {
	return p.Negative != 0 || p.Positive != 0
}

// ArticleMeta is the article header data needed to create an Article row.
type ArticleMeta struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// Counts are the row counts of the four stored relations.
type Counts struct {
	Articles int `json:"articles" db:"articles"`
	Users    int `json:"users" db:"users"`
	Postings int `json:"postings" db:"postings"`
	Ratings  int `json:"ratings" db:"ratings"`
}

// ArticleReport is the outcome of crawling one configured article.
type ArticleReport struct {
	URL        string `json:"url"`
	ArticleID  int64  `json:"article_id,omitempty"`
	State      string `json:"state"`
	Pages      int    `json:"pages"`
	Postings   int    `json:"postings"`
	Ratings    int    `json:"ratings"`
	BudgetLeft int    `json:"budget_left"`
	Error      string `json:"error,omitempty"`
}

// RunReport summarizes one crawl run over all configured articles.
type RunReport struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Articles   []ArticleReport `json:"articles"`
	Counts     Counts          `json:"counts"`
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
