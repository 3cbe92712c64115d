package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/threadcrawl/internal/types"
)

const (
	articleSelectColumns = `article_id, article_title, article_url, article_publication_date`
	userSelectColumns    = `user_id, user_name, user_organization, verified, follower_count, supporter`
	postingSelectColumns = `posting_id, article_id, user_id, posting_ref_id, parent_posting_ref_id,
	posting_date, negative_rating, positive_rating, posting_title, posting_content`
	ratingSelectColumns = `posting_id, user_id, positive`
)

// Store is the only component that touches the database. Every call commits on its own.
type Store struct {
	db *sqlx.DB
}

// New opens (creating if needed) the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewWithDB wraps an already opened database without touching the schema.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema. Safe to run on every start.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		article_id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_title TEXT NOT NULL,
		article_url TEXT NOT NULL UNIQUE,
		article_publication_date DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_name TEXT NOT NULL UNIQUE,
		user_organization TEXT,
		verified BOOLEAN NOT NULL DEFAULT 0,
		follower_count INTEGER,
		supporter BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS postings (
		posting_id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id INTEGER NOT NULL REFERENCES articles(article_id),
		user_id INTEGER NOT NULL REFERENCES users(user_id),
		posting_ref_id TEXT NOT NULL UNIQUE,
		parent_posting_ref_id TEXT,
		posting_date DATETIME NOT NULL,
		negative_rating INTEGER NOT NULL DEFAULT 0,
		positive_rating INTEGER NOT NULL DEFAULT 0,
		posting_title TEXT,
		posting_content TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS posting_ratings (
		posting_id INTEGER NOT NULL REFERENCES postings(posting_id),
		user_id INTEGER NOT NULL REFERENCES users(user_id),
		positive BOOLEAN NOT NULL,
		PRIMARY KEY (posting_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_postings_article ON postings(article_id, posting_id);
	CREATE INDEX IF NOT EXISTS idx_postings_parent ON postings(parent_posting_ref_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ArticleByURL looks up an article without creating it.
func (s *Store) ArticleByURL(ctx context.Context, url string) (*Article, bool, error) {
	var a Article
	err := s.db.GetContext(ctx, &a, `SELECT `+articleSelectColumns+` FROM articles WHERE article_url = ?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to select article: %w", err)
	}
	return &a, true, nil
}

// GetOrCreateArticle returns the article for meta.URL, inserting it on first sighting.
// Uses INSERT ... ON CONFLICT DO NOTHING then SELECT.
func (s *Store) GetOrCreateArticle(ctx context.Context, meta types.ArticleMeta) (*Article, bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (article_title, article_url, article_publication_date)
		VALUES (?, ?, ?)
		ON CONFLICT (article_url) DO NOTHING
	`, meta.Title, meta.URL, meta.PublishedAt)
	created, err := insertedRow(result, err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert article: %w", err)
	}

	var a Article
	if err := s.db.GetContext(ctx, &a, `SELECT `+articleSelectColumns+` FROM articles WHERE article_url = ?`, meta.URL); err != nil {
		return nil, false, fmt.Errorf("failed to select article: %w", err)
	}
	return &a, created, nil
}

// GetOrCreateUser returns the user named raw.Name, inserting it on first sighting.
func (s *Store) GetOrCreateUser(ctx context.Context, raw types.RawUser) (*User, bool, error) {
	u := NewUser(raw)
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_name, user_organization, verified, follower_count, supporter)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_name) DO NOTHING
	`, u.Name, u.Organization, u.Verified, u.FollowerCount, u.Supporter)
	created, err := insertedRow(result, err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert user: %w", err)
	}

	var stored User
	if err := s.db.GetContext(ctx, &stored, `SELECT `+userSelectColumns+` FROM users WHERE user_name = ?`, raw.Name); err != nil {
		return nil, false, fmt.Errorf("failed to select user: %w", err)
	}
	return &stored, created, nil
}

// UpdateUser writes the mutable user fields.
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET user_organization = ?, verified = ?, follower_count = ?, supporter = ?
		WHERE user_id = ?
	`, u.Organization, u.Verified, u.FollowerCount, u.Supporter, u.ID)
	return execRequireRows(result, err, fmt.Errorf("user not found: %d", u.ID))
}

// GetOrCreatePosting returns the posting with p.RefID, inserting p on first sighting.
func (s *Store) GetOrCreatePosting(ctx context.Context, p *Posting) (*Posting, bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO postings (article_id, user_id, posting_ref_id, parent_posting_ref_id,
			posting_date, negative_rating, positive_rating, posting_title, posting_content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (posting_ref_id) DO NOTHING
	`, p.ArticleID, p.UserID, p.RefID, p.ParentRefID,
		p.PostedAt, p.Negative, p.Positive, p.Title, p.Content)
	created, err := insertedRow(result, err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert posting: %w", err)
	}

	var stored Posting
	if err := s.db.GetContext(ctx, &stored, `SELECT `+postingSelectColumns+` FROM postings WHERE posting_ref_id = ?`, p.RefID); err != nil {
		return nil, false, fmt.Errorf("failed to select posting: %w", err)
	}
	return &stored, created, nil
}

// UpdatePosting writes the mutable posting fields.
func (s *Store) UpdatePosting(ctx context.Context, p *Posting) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE postings
		SET parent_posting_ref_id = ?, posting_date = ?, negative_rating = ?,
			positive_rating = ?, posting_title = ?, posting_content = ?
		WHERE posting_id = ?
	`, p.ParentRefID, p.PostedAt, p.Negative, p.Positive, p.Title, p.Content, p.ID)
	return execRequireRows(result, err, fmt.Errorf("posting not found: %d", p.ID))
}

// GetOrCreateRating returns the rating for (postingID, userID), inserting it on first sighting.
func (s *Store) GetOrCreateRating(ctx context.Context, postingID, userID int64, positive bool) (*PostingRating, bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO posting_ratings (posting_id, user_id, positive)
		VALUES (?, ?, ?)
		ON CONFLICT (posting_id, user_id) DO NOTHING
	`, postingID, userID, positive)
	created, err := insertedRow(result, err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert posting rating: %w", err)
	}

	var stored PostingRating
	if err := s.db.GetContext(ctx, &stored,
		`SELECT `+ratingSelectColumns+` FROM posting_ratings WHERE posting_id = ? AND user_id = ?`,
		postingID, userID); err != nil {
		return nil, false, fmt.Errorf("failed to select posting rating: %w", err)
	}
	return &stored, created, nil
}

// UpdateRating overwrites the rating polarity.
func (s *Store) UpdateRating(ctx context.Context, r *PostingRating) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE posting_ratings SET positive = ? WHERE posting_id = ? AND user_id = ?`,
		r.Positive, r.PostingID, r.UserID)
	return execRequireRows(result, err, fmt.Errorf("posting rating not found: %d/%d", r.PostingID, r.UserID))
}

// AnchorFor returns the reference id of the most recently stored posting of an
// article, or false when the article has none.
func (s *Store) AnchorFor(ctx context.Context, articleID int64) (string, bool, error) {
	var refID string
	err := s.db.GetContext(ctx, &refID, `
		SELECT posting_ref_id FROM postings
		WHERE article_id = ?
		ORDER BY posting_id DESC
		LIMIT 1
	`, articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to select anchor: %w", err)
	}
	return refID, true, nil
}

// Counts returns the number of rows in each relation.
func (s *Store) Counts(ctx context.Context) (types.Counts, error) {
	var c types.Counts
	err := s.db.GetContext(ctx, &c, `
		SELECT
			(SELECT COUNT(*) FROM articles) AS articles,
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM postings) AS postings,
			(SELECT COUNT(*) FROM posting_ratings) AS ratings
	`)
	if err != nil {
		return types.Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}
