// Package mock provides a scripted reply generator for tests.
package mock

import (
	"context"
	"sync"

	"github.com/parley-voice/parley/pkg/reply"
)

var _ reply.Generator = (*Generator)(nil)

// Generator returns scripted answers in order and records every prompt.
// When the script runs out it keeps returning the last answer. Err, when
// set, is returned for every call instead.
type Generator struct {
	mu      sync.Mutex
	answers []string
	prompts []string

	// Err makes every Generate call fail.
	Err error
}

// New builds a Generator that serves the given answers in order.
func New(answers ...string) *Generator {
	return &Generator{answers: answers}
}

func (g *Generator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.Err != nil {
		return "", g.Err
	}
	if len(g.answers) == 0 {
		return "", reply.ErrGenerationFailed
	}
	answer := g.answers[0]
	if len(g.answers) > 1 {
		g.answers = g.answers[1:]
	}
	return answer, nil
}

// Prompts returns a snapshot of every prompt seen so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}
