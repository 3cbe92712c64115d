// Package scrapertest renders forum markup for driving topologies against pagetest pages.
package scrapertest

import (
	"fmt"
	"html"
	"strings"
)

// Article is the header of a derStandard article page.
type Article struct {
	Title   string
	PubDate string // e.g. "23. Dezember 2019, 10:51"
}

// Posting is one derStandard forum posting. Empty optional strings leave the
// element out of the markup.
type Posting struct {
	RefID        string
	ParentRefID  string
	User         string // empty renders a deleted author
	Verified     bool
	Supporter    bool
	Organization string
	Followers    string
	Timestamp    string // e.g. "23. Dezember 2019, 10:51:00"
	Negative     string
	Positive     string
	Title        string
	Text         string
}

// FlatPage renders one page of a flat forum. hasNext controls whether the next
// control is enabled.
func FlatPage(article Article, consent bool, postings []Posting, hasNext bool) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if consent {
		b.WriteString(`<div class="privacywall-info">` +
			`<button class="js-privacywall-agree" data-test-action="remove:.privacywall-info">Einverstanden</button></div>`)
	}
	fmt.Fprintf(&b, `<h1 class="article-title">%s</h1><p class="article-pubdate">%s</p>`,
		html.EscapeString(article.Title), html.EscapeString(article.PubDate))

	b.WriteString(`<div id="postinglist">`)
	for _, p := range postings {
		writePosting(&b, p)
	}
	b.WriteString(`</div>`)

	disabled := " disabled"
	if hasNext {
		disabled = ""
	}
	fmt.Fprintf(&b, `<button class="forum-tb-btnnext" data-test-action="next"%s>weiter</button>`, disabled)
	b.WriteString("</body></html>")
	return b.String()
}

func writePosting(b *strings.Builder, p Posting) {
	fmt.Fprintf(b, `<div class="posting" data-postingid="%s"`, p.RefID)
	if p.ParentRefID != "" {
		fmt.Fprintf(b, ` data-parentpostingid="%s"`, p.ParentRefID)
	}
	b.WriteString(">")

	b.WriteString(`<div class="upost-head">`)
	if p.User != "" {
		fmt.Fprintf(b, `<a class="upost-usercontainer"><strong class="upost-communityname">%s</strong></a>`, html.EscapeString(p.User))
	}
	if p.Verified {
		b.WriteString(`<span class="upost-verified-identity"></span>`)
	}
	if p.Organization != "" {
		fmt.Fprintf(b, `<span class="upost-organization-identity">%s</span>`, html.EscapeString(p.Organization))
	}
	if p.Supporter {
		b.WriteString(`<span class="upost-supporter"></span>`)
	}
	if p.Followers != "" {
		fmt.Fprintf(b, `<span class="upost-follower">%s</span>`, p.Followers)
	}
	fmt.Fprintf(b, `<span class="js-timestamp">%s</span></div>`, p.Timestamp)

	b.WriteString(`<div class="upost-content"><div class="upost-body">`)
	if p.Title != "" {
		fmt.Fprintf(b, `<h4 class="upost-title">%s</h4>`, html.EscapeString(p.Title))
	}
	fmt.Fprintf(b, `<div class="upost-text">%s</div></div></div>`, html.EscapeString(p.Text))

	b.WriteString(`<div class="js-ratings" data-test-action="ratings">`)
	if p.Negative != "" {
		fmt.Fprintf(b, `<span class="ratings-negative-count">%s</span>`, p.Negative)
	}
	if p.Positive != "" {
		fmt.Fprintf(b, `<span class="ratings-positive-count">%s</span>`, p.Positive)
	}
	b.WriteString(`</div></div>`)
}

// Rating is one entry of a posting's rating log.
type Rating struct {
	User     string // empty renders a deleted rater
	Verified bool
	Positive bool
}

// RatingLog renders the rating log markup. With showMore the last entries are
// only reachable after clicking the show-more control.
func RatingLog(ratings []Rating, showMore bool) string {
	var b strings.Builder
	b.WriteString(`<ul id="js-ratings-log-entries">`)
	for _, r := range ratings {
		rate := "negative"
		if r.Positive {
			rate = "positive"
		}
		fmt.Fprintf(&b, `<li data-rate="%s">`, rate)
		if r.User != "" {
			fmt.Fprintf(&b, `<a class="ratings-log-communityname">%s</a>`, html.EscapeString(r.User))
		}
		if r.Verified {
			b.WriteString(`<a class="ratings-log-is-byverifieduser"></a>`)
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ul>`)
	if showMore {
		b.WriteString(`<button class="js-ratings-log-showmore" data-test-action="remove:.js-ratings-log-showmore">mehr</button>`)
	}
	return b.String()
}

// Comment is one Coral Talk comment with its replies.
type Comment struct {
	RefID   string
	Author  string
	Date    string // title attribute, e.g. "12/23/2019, 11:02:03 AM"
	Content string
	Up      string
	Down    string
	Replies []Comment
}

// NestedThread renders a Coral embed as two documents: the first shows only the
// first top-level comment and a load-more control, the second the full thread.
func NestedThread(comments []Comment) []string {
	if len(comments) == 0 {
		return []string{nestedPage(nil, false)}
	}
	return []string{
		nestedPage(comments[:1], true),
		nestedPage(comments, false),
	}
}

func nestedPage(comments []Comment, loadMore bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="talk-stream">`)
	for _, c := range comments {
		writeComment(&b, c, 0)
	}
	b.WriteString(`</div>`)
	if loadMore {
		b.WriteString(`<button class="talk-load-more-button" data-test-action="next">Weitere Kommentare anzeigen</button>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func writeComment(b *strings.Builder, c Comment, level int) {
	fmt.Fprintf(b, `<div class="talk-stream-comment-wrapper-level-%d" id="%s">`, level, c.RefID)
	fmt.Fprintf(b, `<div class="talk-stream-comment-level-%d">`, level)
	if c.Author != "" {
		fmt.Fprintf(b, `<button class="talk-plugin-author-menu-button"><span>%s</span></button>`, html.EscapeString(c.Author))
	}
	fmt.Fprintf(b, `<div class="talk-stream-comment-published-date"><span title="%s">vor 2 Tagen</span></div>`, c.Date)
	fmt.Fprintf(b, `<div class="talk-slot-comment-content">%s</div>`, html.EscapeString(c.Content))
	fmt.Fprintf(b, `<span class="talk-plugin-upvote-count">%s</span><span class="talk-plugin-downvote-count">%s</span>`, c.Up, c.Down)
	b.WriteString(`</div>`)
	for _, r := range c.Replies {
		writeComment(b, r, level+1)
	}
	b.WriteString(`</div>`)
}
