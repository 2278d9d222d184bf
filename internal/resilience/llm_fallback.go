package resilience

import (
	"context"

	"github.com/MrWong99/cantor/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across several language
// model backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports the primary backend's limits.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.group.Primary().Capabilities()
}

// Status reports the breaker state of every backend.
func (f *LLMFallback) Status() []EntryStatus { return f.group.Status() }

// Available reports whether any backend currently admits calls.
func (f *LLMFallback) Available() bool { return f.group.Available() }
