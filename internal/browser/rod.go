package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ibeckermayer/threadcrawl/internal/page"
)

// Rod drives one Chrome tab through go-rod.
type Rod struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

var _ page.Session = (*Rod)(nil)

// NewRod launches Chrome with the same stealth settings as the chromedp engine.
func NewRod(ctx context.Context, headless bool) (*Rod, error) {
	l := applyFlags(launcher.New().Context(ctx), headless)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	p, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &Rod{launcher: l, browser: b, page: p}, nil
}

func (r *Rod) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (r *Rod) Wait(ctx context.Context, d time.Duration) error {
	return page.Sleep(ctx, d)
}

func (r *Rod) Find(ctx context.Context, selector string) (page.Element, bool, error) {
	has, el, err := r.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return nil, false, err
	}
	return &rodElement{el: el}, true, nil
}

func (r *Rod) FindAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRod(els), nil
}

// Close shuts down the browser and removes its profile directory.
func (r *Rod) Close() error {
	err := r.browser.Close()
	r.launcher.Cleanup()
	return err
}

func wrapRod(els rod.Elements) []page.Element {
	out := make([]page.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) ScrollIntoView(ctx context.Context) error {
	return e.el.Context(ctx).ScrollIntoView()
}

func (e *rodElement) Enabled(ctx context.Context) (bool, error) {
	_, disabled, err := e.Attr(ctx, "disabled")
	if err != nil {
		return false, err
	}
	return !disabled, nil
}

func (e *rodElement) Find(ctx context.Context, selector string) (page.Element, bool, error) {
	has, el, err := e.el.Context(ctx).Has(selector)
	if err != nil || !has {
		return nil, false, err
	}
	return &rodElement{el: el}, true, nil
}

func (e *rodElement) FindAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRod(els), nil
}
