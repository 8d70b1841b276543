package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

// NewGenerator builds the provider client matching a resolved credential.
// The returned generator holds the key for one request cycle and must not
// outlive it.
func NewGenerator(provider models.ModelProvider, apiKey, model, endpoint string, logger *zap.Logger) (Generator, error) {
	switch provider {
	case models.ProviderOpenAI:
		return NewOpenAIGenerator(apiKey, model, logger)
	case models.ProviderAzure:
		return NewAzureGenerator(apiKey, endpoint, model, logger)
	case models.ProviderAnthropic:
		return NewAnthropicGenerator(apiKey, model, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
