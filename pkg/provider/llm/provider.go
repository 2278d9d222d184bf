// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (Anthropic Claude, OpenAI,
// a local Ollama instance) and exposes a single blocking completion call. Cantor
// uses it to ask a model for a marked-up rendition of a sacred text; the model's
// answer is always checked and replaced by the rule interpreter on failure, so
// providers need not be perfect, only honest about errors.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is from the
	// "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction. Providers that do
	// not support a dedicated system field prepend it as a "system" message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() ModelCapabilities
}
