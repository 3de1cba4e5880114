package generation

import (
	"context"
	"fmt"
)

// MockGenerator is a configurable mock for testing and local development.
// Set GenerateFunc to control behavior in tests.
type MockGenerator struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns a canned result.
	GenerateFunc func(ctx context.Context, req *Request) (*Result, error)

	// GenerateCalls counts invocations for verification.
	GenerateCalls int
}

// NewMockGenerator creates a new mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

var _ Generator = (*MockGenerator)(nil)

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	m.GenerateCalls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &Result{
		Body:     fmt.Sprintf("[mock] %s post about %s", req.Platform, req.Topic),
		Provider: m.Name(),
		Model:    "mock-model",
	}, nil
}

// Name implements Generator.
func (m *MockGenerator) Name() string { return "mock" }
