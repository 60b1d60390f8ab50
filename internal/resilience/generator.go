package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/parley-voice/parley/pkg/reply"
)

// Generator wraps an inner [reply.Generator] with a [Breaker]. While the
// breaker is open, Generate fails immediately instead of spending the
// conversation's reply window on a provider that keeps timing out; the
// caller treats the fast failure like any other generation failure.
type Generator struct {
	inner   reply.Generator
	breaker *Breaker
}

var _ reply.Generator = (*Generator)(nil)

// NewGenerator wraps inner with a breaker carrying the given options.
func NewGenerator(inner reply.Generator, opts ...BreakerOption) *Generator {
	return &Generator{
		inner:   inner,
		breaker: NewBreaker("reply", opts...),
	}
}

// Generate implements [reply.Generator]. Failures returned by the inner
// generator count against the breaker; [ErrOpen] rejections are wrapped in
// [reply.ErrGenerationFailed] so callers need only one sentinel.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := g.breaker.Do(func() error {
		var genErr error
		answer, genErr = g.inner.Generate(ctx, prompt)
		return genErr
	})
	if errors.Is(err, ErrOpen) {
		return "", fmt.Errorf("%w: %w", reply.ErrGenerationFailed, ErrOpen)
	}
	return answer, err
}

// BreakerState exposes the wrapped breaker's mode for health reporting.
func (g *Generator) BreakerState() BreakerState {
	return g.breaker.State()
}
