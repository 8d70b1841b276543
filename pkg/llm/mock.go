package llm

import "context"

// MockGenerator is a configurable mock for testing generation paths.
// Set the function fields to control behavior in tests.
type MockGenerator struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns an empty result and nil error.
	GenerateFunc func(ctx context.Context, req *Request) (*Result, error)

	// GenerateStreamFunc is called when GenerateStream is invoked.
	// If nil, emits Content of GenerateFunc's result as one delta.
	GenerateStreamFunc func(ctx context.Context, req *Request, onDelta func(string) error) (*Result, error)

	// Call tracking for verification
	GenerateCalls       int
	GenerateStreamCalls int
}

// NewMockGenerator creates a new mock with sensible defaults.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	m.GenerateCalls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &Result{}, nil
}

// GenerateStream implements Generator.
func (m *MockGenerator) GenerateStream(ctx context.Context, req *Request, onDelta func(string) error) (*Result, error) {
	m.GenerateStreamCalls++
	if m.GenerateStreamFunc != nil {
		return m.GenerateStreamFunc(ctx, req, onDelta)
	}

	result, err := m.Generate(ctx, req)
	m.GenerateCalls-- // Generate above is an implementation detail
	if err != nil {
		return nil, err
	}
	if result.Content != "" {
		if err := onDelta(result.Content); err != nil {
			return &Result{}, err
		}
	}
	return result, nil
}

var _ Generator = (*MockGenerator)(nil)
