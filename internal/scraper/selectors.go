package scraper

import (
	"fmt"
	"strings"
)

// Forum DOM selectors
// These are isolated here because the forums change their markup without notice
// Update these when extraction breaks

// derStandard forum (flat, paginated)
const (
	ConsentWall   = `.privacywall-info`
	ConsentAccept = `.js-privacywall-agree`

	ArticleTitle   = `h1.article-title`
	ArticlePubDate = `p.article-pubdate`

	PostingItem       = `div#postinglist div.posting`
	PostingRefAttr    = `data-postingid`
	PostingParentAttr = `data-parentpostingid`

	UserName         = `a.upost-usercontainer strong.upost-communityname`
	UserVerified     = `span.upost-verified-identity`
	UserOrganization = `span.upost-organization-identity`
	UserSupporter    = `span.upost-supporter`
	UserFollowers    = `span.upost-follower`

	PostingTimestamp = `span.js-timestamp`
	PostingNegative  = `span.ratings-negative-count`
	PostingPositive  = `span.ratings-positive-count`
	PostingTitle     = `div.upost-content div.upost-body h4.upost-title`
	PostingText      = `div.upost-content div.upost-body div.upost-text`

	RatingsToggle   = `div.js-ratings`
	RatingsShowMore = `.js-ratings-log-showmore`
	RatingsLog      = `ul#js-ratings-log-entries`
	RatingsEntry    = RatingsLog + ` li`
	RatingsUserName = `a.ratings-log-communityname`
	RatingsVerified = `a.ratings-log-is-byverifieduser`
	RatingsRateAttr = `data-rate`

	NextPage = `.forum-tb-btnnext`
)

// PostingByRef selects one posting of the current page by its reference id.
func PostingByRef(refID string) string {
	return fmt.Sprintf(`div#postinglist div.posting[data-postingid='%s']`, quoteAttr(refID))
}

// Coral Talk embed (recursively nested)
const (
	LoadMore = `button.talk-load-more-button`

	CommentRefAttr  = `id`
	CommentAuthor   = `button.talk-plugin-author-menu-button span`
	CommentDate     = `div.talk-stream-comment-published-date span`
	CommentDateAttr = `title`
	CommentContent  = `div.talk-slot-comment-content`
	CommentUpvotes  = `span.talk-plugin-upvote-count`
	CommentDownvote = `span.talk-plugin-downvote-count`
)

// CommentLevel selects the comment wrappers at one nesting depth.
func CommentLevel(level int) string {
	return fmt.Sprintf(`div.talk-stream-comment-wrapper-level-%d`, level)
}

// CommentBody selects the fields of one comment without the replies nested in its wrapper.
func CommentBody(level int) string {
	return fmt.Sprintf(`div.talk-stream-comment-level-%d`, level)
}

// CommentByRef selects one comment wrapper by its reference id.
func CommentByRef(refID string) string {
	return fmt.Sprintf(`div[id='%s']`, quoteAttr(refID))
}

var attrEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\a `)

// quoteAttr escapes a value for a single-quoted CSS attribute selector.
func quoteAttr(v string) string {
	return attrEscaper.Replace(v)
}
