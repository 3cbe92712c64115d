package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/threadcrawl/internal/page"
)

// actionTimeout bounds a single engine call so a detached node cannot hang the crawl.
const actionTimeout = 30 * time.Second

// Chromedp drives one Chrome tab through the DevTools protocol.
type Chromedp struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

var _ page.Session = (*Chromedp)(nil)

// NewChromedp starts Chrome and opens a tab.
func NewChromedp(ctx context.Context, headless bool) (*Chromedp, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, Options(headless)...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run launches the browser.
	if err := chromedp.Run(tab); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &Chromedp{tab: tab, cancelTab: tabCancel, cancelAlloc: allocCancel}, nil
}

// run executes actions on the tab while honouring the caller's ctx.
func (c *Chromedp) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.tab, actionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Chromedp) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chromedp) Wait(ctx context.Context, d time.Duration) error {
	return page.Sleep(ctx, d)
}

func (c *Chromedp) Find(ctx context.Context, selector string) (page.Element, bool, error) {
	return c.first(ctx, selector)
}

func (c *Chromedp) FindAll(ctx context.Context, selector string) ([]page.Element, error) {
	return c.all(ctx, selector)
}

func (c *Chromedp) first(ctx context.Context, selector string, opts ...chromedp.QueryOption) (page.Element, bool, error) {
	var nodes []*cdp.Node
	opts = append(opts, chromedp.ByQuery, chromedp.AtLeast(0))
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, false, fmt.Errorf("query %s: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}
	return &chromedpElement{c: c, node: nodes[0]}, true, nil
}

func (c *Chromedp) all(ctx context.Context, selector string, opts ...chromedp.QueryOption) ([]page.Element, error) {
	var nodes []*cdp.Node
	opts = append(opts, chromedp.ByQueryAll, chromedp.AtLeast(0))
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	out := make([]page.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromedpElement{c: c, node: n})
	}
	return out, nil
}

// Close shuts down the tab and the browser process.
func (c *Chromedp) Close() error {
	c.cancelTab()
	c.cancelAlloc()
	return nil
}

type chromedpElement struct {
	c    *Chromedp
	node *cdp.Node
}

func (e *chromedpElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

// Text reads the rendered innerText so line breaks survive. chromedp.Text would
// wait for the node to become visible, which collapsed nodes never do.
func (e *chromedpElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.c.run(ctx, chromedp.JavascriptAttribute(e.ids(), "innerText", &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return text, nil
}

func (e *chromedpElement) Attr(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	if err := e.c.run(ctx, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func (e *chromedpElement) Click(ctx context.Context) error {
	return e.c.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID))
}

func (e *chromedpElement) ScrollIntoView(ctx context.Context) error {
	return e.c.run(ctx, chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID))
}

func (e *chromedpElement) Enabled(ctx context.Context) (bool, error) {
	_, disabled, err := e.Attr(ctx, "disabled")
	if err != nil {
		return false, err
	}
	return !disabled, nil
}

func (e *chromedpElement) Find(ctx context.Context, selector string) (page.Element, bool, error) {
	return e.c.first(ctx, selector, chromedp.FromNode(e.node))
}

func (e *chromedpElement) FindAll(ctx context.Context, selector string) ([]page.Element, error) {
	return e.c.all(ctx, selector, chromedp.FromNode(e.node))
}
