package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrBudgetExhausted is returned by Budget.Attempt once the shared budget is spent.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Budget is the error budget shared by every unit of one article crawl.
// It is not safe for concurrent use.
type Budget struct {
	max       int
	remaining int
	log       zerolog.Logger
}

// NewBudget returns a full budget of max tolerated failures.
func NewBudget(max int, log zerolog.Logger) *Budget {
	return &Budget{max: max, remaining: max, log: log}
}

// Remaining is the number of failures still tolerated.
func (b *Budget) Remaining() int {
	return b.remaining
}

// Max is the size of a fresh budget.
func (b *Budget) Max() int {
	return b.max
}

// Attempt runs fn until it succeeds, re-running the same unit after every failure.
// Each failure costs one unit of budget; when none is left it returns an error
// wrapping ErrBudgetExhausted and the last failure.
func (b *Budget) Attempt(ctx context.Context, unit string, fn func(ctx context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.remaining <= 0 {
			return fmt.Errorf("%w: unit %s not attempted", ErrBudgetExhausted, unit)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.remaining--
		b.log.Error().
			Err(err).
			Str("unit", unit).
			Int("retries_left", b.remaining).
			Msg("Couldn't process unit")

		if b.remaining == 0 {
			return fmt.Errorf("%w after %d failures: %w", ErrBudgetExhausted, b.max, err)
		}
	}
}
