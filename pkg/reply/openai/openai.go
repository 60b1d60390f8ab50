// Package openai provides a [reply.Generator] backed by the OpenAI chat
// completions API. The generator keeps a bounded in-memory exchange history
// so consecutive answers stay coherent across an interview.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parley-voice/parley/pkg/reply"
)

// Compile-time assertion that Generator satisfies the reply.Generator interface.
var _ reply.Generator = (*Generator)(nil)

const (
	defaultModel        = "gpt-4o-mini"
	defaultSystemPrompt = "You are a job candidate in a spoken interview. " +
		"Answer the interviewer's question directly and conversationally, " +
		"in at most four sentences, with no markdown or lists."

	// defaultMaxExchanges bounds the retained prompt/reply pairs sent as
	// context with each request.
	defaultMaxExchanges = 12
)

// Option is a functional option for configuring a Generator.
type Option func(*Generator)

// WithModel sets the chat model. Default "gpt-4o-mini".
func WithModel(model string) Option {
	return func(g *Generator) { g.model = model }
}

// WithSystemPrompt replaces the default interview persona instructions.
func WithSystemPrompt(prompt string) Option {
	return func(g *Generator) { g.systemPrompt = prompt }
}

// WithBaseURL overrides the API base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(g *Generator) { g.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// Generator implements [reply.Generator] over OpenAI chat completions.
type Generator struct {
	client       oai.Client
	model        string
	systemPrompt string
	baseURL      string
	timeout      time.Duration

	mu        sync.Mutex
	exchanges []exchange
}

type exchange struct {
	prompt string
	answer string
}

// New constructs a Generator. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	g := &Generator{
		model:        defaultModel,
		systemPrompt: defaultSystemPrompt,
	}
	for _, o := range opts {
		o(g)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if g.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(g.baseURL))
	}
	if g.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: g.timeout}))
	}
	g.client = oai.NewClient(reqOpts...)
	return g, nil
}

// Generate implements [reply.Generator]. Provider failures are wrapped in
// [reply.ErrGenerationFailed] so the caller can fall through without
// inspecting provider-specific errors.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(g.systemPrompt),
	}
	g.mu.Lock()
	for _, ex := range g.exchanges {
		messages = append(messages,
			oai.UserMessage(ex.prompt),
			oai.AssistantMessage(ex.answer),
		)
	}
	g.mu.Unlock()
	messages = append(messages, oai.UserMessage(prompt))

	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", reply.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", reply.ErrGenerationFailed)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: blank completion", reply.ErrGenerationFailed)
	}

	g.mu.Lock()
	g.exchanges = append(g.exchanges, exchange{prompt: prompt, answer: answer})
	if len(g.exchanges) > defaultMaxExchanges {
		g.exchanges = g.exchanges[len(g.exchanges)-defaultMaxExchanges:]
	}
	g.mu.Unlock()

	return answer, nil
}
