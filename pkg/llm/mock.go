package llm

import (
	"context"
)

// MockClient is a configurable mock for testing translation behavior.
// Set the function field to control responses in tests.
type MockClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns empty string and nil error.
	CompleteFunc func(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification
	CompleteCalls   int
	LastSystem      string
	LastMessages    []Message
	LastTemperature float64
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-model"}
}

// Complete implements CompletionClient.
func (m *MockClient) Complete(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error) {
	m.CompleteCalls++
	m.LastSystem = systemPrompt
	m.LastMessages = messages
	m.LastTemperature = temperature
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, systemPrompt, messages, temperature)
	}
	return "", nil
}

// Model implements CompletionClient.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

var _ CompletionClient = (*MockClient)(nil)
