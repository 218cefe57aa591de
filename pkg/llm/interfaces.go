// Package llm provides completion clients for SQL translation.
package llm

import "context"

// Message roles in a completion request.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    string
	Content string
}

// CompletionClient defines the interface for language-model completions.
// Use this interface for dependency injection to enable mocking in tests.
type CompletionClient interface {
	// Complete sends a system instruction plus a message sequence and
	// returns the raw text response.
	Complete(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error)

	// Model returns the configured model name.
	Model() string
}

// Ensure both clients implement CompletionClient at compile time.
var (
	_ CompletionClient = (*OpenAIClient)(nil)
	_ CompletionClient = (*AnthropicClient)(nil)
)
