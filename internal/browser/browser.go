package browser

import (
	"context"
	"fmt"

	"github.com/ibeckermayer/threadcrawl/internal/config"
	"github.com/ibeckermayer/threadcrawl/internal/page"
)

// New starts the configured engine.
func New(ctx context.Context, engine string, headless bool) (page.Session, error) {
	switch engine {
	case config.EngineChromedp, "":
		return NewChromedp(ctx, headless)
	case config.EngineRod:
		return NewRod(ctx, headless)
	default:
		return nil, fmt.Errorf("unknown browser engine: %q", engine)
	}
}
