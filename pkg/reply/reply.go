// Package reply defines the reply-generation boundary the coordinator calls
// once per completed interviewer utterance. Implementations live in
// subpackages; the coordinator depends only on [Generator].
package reply

import (
	"context"
	"errors"
)

// ErrGenerationFailed wraps any provider failure. The coordinator treats a
// failed generation as "nothing to say" and moves on to cooldown without
// speaking — a silent miss is preferable to a wedged conversation.
var ErrGenerationFailed = errors.New("reply: generation failed")

// Generator produces the agent's spoken reply to a prompt. Implementations
// must be safe for concurrent use, though the coordinator issues at most one
// call at a time.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to the [Generator] interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements [Generator].
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
