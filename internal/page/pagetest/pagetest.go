// Package pagetest provides a scripted page.Page backed by static HTML fixtures.
//
// A thread is a list of HTML documents, one per pagination step. Elements carry
// their behaviour on click through a data-test-action attribute:
//
//	next            load the next document of the thread (unless disabled)
//	remove:<sel>    remove every node matching <sel>
//	ratings         toggle the rating log registered for the enclosing posting
//
// Loading a document invalidates every element handed out before, the way a
// real browser reports stale nodes after navigation.
package pagetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ibeckermayer/threadcrawl/internal/page"
)

const actionAttr = "data-test-action"

// ErrStale is returned when an element outlived the document it belongs to.
var ErrStale = errors.New("stale element reference")

// Page is a fake page.Page. It is not safe for concurrent use.
type Page struct {
	threads map[string][]string
	ratings map[string]string

	url   string
	index int
	gen   int
	doc   *goquery.Document

	// Navigations lists every url passed to Navigate.
	Navigations []string
	// Clicks counts successful clicks.
	Clicks int
	// Waited is the sum of all requested waits. Wait never sleeps.
	Waited time.Duration
}

var _ page.Page = (*Page)(nil)

// New returns an empty fake with no threads registered.
func New() *Page {
	return &Page{
		threads: make(map[string][]string),
		ratings: make(map[string]string),
	}
}

// AddThread registers the documents served for url, in pagination order.
func (p *Page) AddThread(url string, pages ...string) *Page {
	p.threads[url] = pages
	return p
}

// SetRatings registers the rating log markup shown for the posting with the
// given data-postingid when its ratings control is clicked.
func (p *Page) SetRatings(refID, html string) *Page {
	p.ratings[refID] = html
	return p
}

// PageIndex is the zero-based pagination step currently loaded.
func (p *Page) PageIndex() int {
	return p.index
}

// Navigate loads the first document of the thread registered for url.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Navigations = append(p.Navigations, url)
	if _, ok := p.threads[url]; !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	p.url = url
	p.index = 0
	return p.load()
}

func (p *Page) load() error {
	pages := p.threads[p.url]
	if p.index >= len(pages) {
		return fmt.Errorf("thread %s has no page %d", p.url, p.index+1)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pages[p.index]))
	if err != nil {
		return err
	}
	p.doc = doc
	p.gen++
	return nil
}

func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	p.Waited += d
	return ctx.Err()
}

func (p *Page) Find(ctx context.Context, selector string) (page.Element, bool, error) {
	if p.doc == nil {
		return nil, false, errors.New("no document loaded")
	}
	return p.first(p.doc.Selection, selector)
}

func (p *Page) FindAll(ctx context.Context, selector string) ([]page.Element, error) {
	if p.doc == nil {
		return nil, errors.New("no document loaded")
	}
	return p.all(p.doc.Selection, selector), nil
}

func (p *Page) first(root *goquery.Selection, selector string) (page.Element, bool, error) {
	sel := root.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false, nil
	}
	return &Element{page: p, gen: p.gen, sel: sel}, true, nil
}

func (p *Page) all(root *goquery.Selection, selector string) []page.Element {
	var out []page.Element
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{page: p, gen: p.gen, sel: s})
	})
	return out
}

func (p *Page) click(sel *goquery.Selection) error {
	action, _ := sel.Attr(actionAttr)
	switch {
	case action == "":
	case action == "next":
		if _, disabled := sel.Attr("disabled"); disabled {
			return nil
		}
		p.index++
		if err := p.load(); err != nil {
			return err
		}
	case action == "ratings":
		posting := sel.Closest("[data-postingid]")
		refID, _ := posting.Attr("data-postingid")
		if open := p.doc.Find("[data-ratings-log]"); open.Length() > 0 {
			open.Remove()
			break
		}
		html, ok := p.ratings[refID]
		if !ok {
			return fmt.Errorf("no rating log registered for posting %q", refID)
		}
		p.doc.Find("body").AppendHtml(`<div data-ratings-log="` + refID + `">` + html + `</div>`)
	case strings.HasPrefix(action, "remove:"):
		p.doc.Find(strings.TrimPrefix(action, "remove:")).Remove()
	default:
		return fmt.Errorf("unknown test action %q", action)
	}
	p.Clicks++
	return nil
}

// Element is a node of the currently loaded document.
type Element struct {
	page *Page
	gen  int
	sel  *goquery.Selection
}

var _ page.Element = (*Element)(nil)

func (e *Element) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.gen != e.page.gen {
		return ErrStale
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.check(ctx); err != nil {
		return "", err
	}
	// Rendered text keeps <br> as a line break.
	sel := e.sel.Clone()
	sel.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(sel.Text()), nil
}

func (e *Element) Attr(ctx context.Context, name string) (string, bool, error) {
	if err := e.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.page.click(e.sel)
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	return e.check(ctx)
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	if err := e.check(ctx); err != nil {
		return false, err
	}
	_, disabled := e.sel.Attr("disabled")
	return !disabled, nil
}

func (e *Element) Find(ctx context.Context, selector string) (page.Element, bool, error) {
	if err := e.check(ctx); err != nil {
		return nil, false, err
	}
	return e.page.first(e.sel, selector)
}

func (e *Element) FindAll(ctx context.Context, selector string) ([]page.Element, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	return e.page.all(e.sel, selector), nil
}
