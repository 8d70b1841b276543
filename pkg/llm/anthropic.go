package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

type anthropicGenerator struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicGenerator creates a generator for an Anthropic-compatible
// endpoint.
func NewAnthropicGenerator(apiKey, model string, logger *zap.Logger) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &anthropicGenerator{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("llm"),
	}, nil
}

func (g *anthropicGenerator) request(req *Request) anthropic.MessagesRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	temperature := float32(req.Temperature)
	msgReq := anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(req.Prompt),
		},
		Temperature: &temperature,
	}
	if req.System != "" {
		msgReq.System = req.System
	}
	return msgReq
}

func (g *anthropicGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	resp, err := g.client.CreateMessages(ctx, g.request(req))
	if err != nil {
		g.logger.Error("Generation failed",
			zap.String("provider", "anthropic"),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, g.parseError(err)
	}

	g.logger.Info("Generation completed",
		zap.String("provider", "anthropic"),
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Content:          resp.GetFirstContentText(),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

func (g *anthropicGenerator) GenerateStream(ctx context.Context, req *Request, onDelta func(string) error) (*Result, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var content []byte
	var deltaErr error

	resp, err := g.client.CreateMessagesStream(streamCtx, anthropic.MessagesStreamRequest{
		MessagesRequest: g.request(req),
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if deltaErr != nil || data.Delta.Text == nil {
				return
			}
			delta := *data.Delta.Text
			content = append(content, delta...)
			if err := onDelta(delta); err != nil {
				deltaErr = err
				cancel()
			}
		},
	})

	if deltaErr != nil {
		return &Result{Content: string(content)}, deltaErr
	}
	if err != nil {
		return &Result{Content: string(content)}, g.parseError(err)
	}

	return &Result{
		Content:          resp.GetFirstContentText(),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

func (g *anthropicGenerator) parseError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuthenticationErr() || apiErr.IsPermissionErr():
			return &Error{Type: ErrTypeInvalidKey, Message: "authentication failed", Cause: err, Provider: "anthropic"}
		case apiErr.IsRateLimitErr():
			return &Error{Type: ErrTypeRateLimited, Message: "rate limited", Retryable: true, Cause: err, Provider: "anthropic"}
		case apiErr.IsApiErr() || apiErr.IsOverloadedErr():
			return &Error{Type: ErrTypeUnavailable, Message: "provider unavailable", Retryable: true, Cause: err, Provider: "anthropic"}
		case apiErr.IsInvalidRequestErr():
			return &Error{Type: ErrTypeBadRequest, Message: "invalid request", Cause: err, Provider: "anthropic"}
		}
	}

	classified := ClassifyError(err)
	classified.Provider = "anthropic"
	return classified
}

var _ Generator = (*anthropicGenerator)(nil)
