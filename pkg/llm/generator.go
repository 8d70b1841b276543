// Package llm provides model provider clients behind a single Generator
// interface. Supported providers are OpenAI-compatible, Azure OpenAI, and
// Anthropic-compatible endpoints. API keys live only inside a client for
// the duration of one request cycle; clients are never cached.
package llm

import "context"

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Result is the outcome of a generation call.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Generator produces text from a prompt.
type Generator interface {
	// Generate returns the full completion.
	Generate(ctx context.Context, req *Request) (*Result, error)

	// GenerateStream invokes onDelta for each content fragment as it
	// arrives and returns the assembled result. A non-nil error from
	// onDelta aborts the stream; the partial result comes back with the
	// error so callers can keep what was produced.
	GenerateStream(ctx context.Context, req *Request, onDelta func(delta string) error) (*Result, error)
}

const defaultMaxTokens = 2048
