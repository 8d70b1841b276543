package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIGenerator serves both plain OpenAI-compatible endpoints and Azure
// OpenAI deployments; the two differ only in client configuration.
type openAIGenerator struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// NewOpenAIGenerator creates a generator for an OpenAI-compatible endpoint.
func NewOpenAIGenerator(apiKey, model string, logger *zap.Logger) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &openAIGenerator{
		client:   openai.NewClient(apiKey),
		model:    model,
		provider: "openai",
		logger:   logger.Named("llm"),
	}, nil
}

// NewAzureGenerator creates a generator for an Azure OpenAI deployment.
func NewAzureGenerator(apiKey, endpoint, model string, logger *zap.Logger) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("azure endpoint is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	cfg := openai.DefaultAzureConfig(apiKey, strings.TrimSuffix(endpoint, "/"))
	return &openAIGenerator{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		provider: "azure",
		logger:   logger.Named("llm"),
	}, nil
}

func (g *openAIGenerator) request(req *Request) openai.ChatCompletionRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.Prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens,
	}
}

func (g *openAIGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, g.request(req))
	if err != nil {
		g.logger.Error("Generation failed",
			zap.String("provider", g.provider),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, g.parseError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(ErrTypeUnknown, "no choices in response", false, nil)
	}

	g.logger.Info("Generation completed",
		zap.String("provider", g.provider),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (g *openAIGenerator) GenerateStream(ctx context.Context, req *Request, onDelta func(string) error) (*Result, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(req))
	if err != nil {
		return nil, g.parseError(err)
	}
	defer stream.Close()

	var content strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Hand back what streamed before the failure
			return &Result{Content: content.String()}, g.parseError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return &Result{Content: content.String()}, err
		}
	}

	return &Result{Content: content.String()}, nil
}

// parseError maps go-openai errors onto the package taxonomy.
func (g *openAIGenerator) parseError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		classified := &Error{
			Message:    "provider request failed",
			Cause:      err,
			StatusCode: apiErr.HTTPStatusCode,
			Provider:   g.provider,
		}
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			classified.Type = ErrTypeInvalidKey
			classified.Message = "authentication failed"
		case 429:
			classified.Type = ErrTypeRateLimited
			classified.Message = "rate limited"
			classified.Retryable = true
		case 400, 404:
			classified.Type = ErrTypeBadRequest
			classified.Message = "invalid request"
		case 500, 502, 503, 504:
			classified.Type = ErrTypeUnavailable
			classified.Message = "provider unavailable"
			classified.Retryable = true
		default:
			classified.Type = ErrTypeUnknown
		}
		return classified
	}

	classified := ClassifyError(err)
	classified.Provider = g.provider
	return classified
}

var _ Generator = (*openAIGenerator)(nil)
