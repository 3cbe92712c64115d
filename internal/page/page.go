// Package page defines the capability the crawler needs from a rendering engine.
//
// Lookups report absence through a bool rather than an error so that optional
// elements can be branched on. An error always means the engine itself failed.
package page

import (
	"context"
	"time"
)

// Page is one browser tab driven by a single cursor.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Wait blocks for a fixed duration or until ctx is done.
	Wait(ctx context.Context, d time.Duration) error
	Find(ctx context.Context, selector string) (Element, bool, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
}

// Element is a handle to a node on the current page.
type Element interface {
	// Text is the rendered text of the node; line breaks stay line breaks.
	Text(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	// Enabled reports false for controls carrying the disabled attribute.
	Enabled(ctx context.Context) (bool, error)
	Find(ctx context.Context, selector string) (Element, bool, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
}

// Session is a Page backed by a running browser that must be shut down.
type Session interface {
	Page
	Close() error
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
