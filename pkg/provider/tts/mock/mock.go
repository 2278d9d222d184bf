// Package mock is an in-memory [tts.Provider] for tests.
//
//	p := &mock.Provider{
//	    SynthesizeResult: &tts.Audio{Data: wav, ContentType: "audio/wav"},
//	    ListVoicesResult: []tts.Voice{{ID: "p225", Name: "p225"}},
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/cantor/pkg/provider/tts"
)

// Call is one recorded synthesis request.
type Call struct {
	Ctx context.Context
	Req tts.Request
}

// Provider answers with SynthesizeFunc when set, otherwise with
// SynthesizeErr or SynthesizeResult. Without either it returns the request
// text as the audio bytes, so tests can tell which markup was voiced.
type Provider struct {
	SynthesizeResult *tts.Audio
	SynthesizeErr    error

	// SynthesizeFunc is called without holding the mock's lock, so it may
	// block on ctx.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (*tts.Audio, error)

	ListVoicesResult []tts.Voice
	ListVoicesErr    error

	mu    sync.Mutex
	calls []Call
}

func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Ctx: ctx, Req: req})
	p.mu.Unlock()

	switch {
	case p.SynthesizeFunc != nil:
		return p.SynthesizeFunc(ctx, req)
	case p.SynthesizeErr != nil:
		return nil, p.SynthesizeErr
	case p.SynthesizeResult != nil:
		return p.SynthesizeResult, nil
	}
	return &tts.Audio{Data: []byte(req.Text), ContentType: "audio/mpeg", Model: req.Model}, nil
}

func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns the synthesis requests seen so far, oldest first.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

var _ tts.Provider = (*Provider)(nil)
