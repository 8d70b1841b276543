// Package synthesis turns retrieval evidence into a grounded natural
// language answer. The generator is supplied per call because provider
// clients are built fresh from an ephemeral credential on every request.
package synthesis

import (
	"context"

	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/llm"
	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/retry"
)

// Engine synthesizes answers from evidence.
type Engine struct {
	temperature float64
	logger      *zap.Logger
}

// NewEngine creates a synthesis engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		temperature: 0.2,
		logger:      logger.Named("synthesis"),
	}
}

// Answer produces a complete answer grounded in the evidence and the
// session's prior turns. Transient provider failures get exactly one retry;
// permanent ones surface immediately.
func (e *Engine) Answer(ctx context.Context, gen llm.Generator, query string, history []models.Turn, results []*models.RetrievalResult) (*llm.Result, error) {
	req := &llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(query, history, results),
		Temperature: e.temperature,
	}

	var result *llm.Result
	err := retry.DoIfRetryable(ctx, retry.SingleRetry(), func() error {
		r, err := gen.Generate(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Answer synthesized",
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens))
	return result, nil
}

// AnswerStream streams the answer through onDelta. If the stream dies
// midway the partial content comes back with the error; cancellation stops
// the stream without retrying.
func (e *Engine) AnswerStream(ctx context.Context, gen llm.Generator, query string, history []models.Turn, results []*models.RetrievalResult, onDelta func(string) error) (*llm.Result, error) {
	req := &llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(query, history, results),
		Temperature: e.temperature,
	}

	// No retry once streaming begins: deltas already reached the caller
	return gen.GenerateStream(ctx, req, onDelta)
}
