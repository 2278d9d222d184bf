// Package mock is an in-memory [llm.Provider] for tests. It answers every
// completion with a fixed response or a caller-supplied function and keeps
// the requests it saw.
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "[pause] In the beginning"},
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/cantor/pkg/provider/llm"
)

// Call is one recorded completion request.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers with CompleteFunc when set, otherwise with
// CompleteResponse and CompleteErr. A nil response and nil error are
// returned as is.
type Provider struct {
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// CompleteFunc is called without holding the mock's lock, so it may
	// block on ctx.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	ModelCapabilities llm.ModelCapabilities

	mu    sync.Mutex
	calls []Call
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Ctx: ctx, Req: req})
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	return p.CompleteResponse, p.CompleteErr
}

func (p *Provider) Capabilities() llm.ModelCapabilities { return p.ModelCapabilities }

// Calls returns the requests seen so far, oldest first.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

var _ llm.Provider = (*Provider)(nil)
