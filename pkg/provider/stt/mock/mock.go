// Package mock is an in-memory [stt.Provider] for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/stt"
)

// Call is one recorded transcription request.
type Call struct {
	Ctx  context.Context
	Clip audio.Clip
	Opts stt.Options
}

// Provider returns Result and Err for every clip.
type Provider struct {
	Result stt.Transcript
	Err    error

	mu    sync.Mutex
	calls []Call
}

func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Ctx: ctx, Clip: clip, Opts: opts})
	p.mu.Unlock()
	return p.Result, p.Err
}

// Calls returns the transcription requests seen so far, oldest first.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

var _ stt.Provider = (*Provider)(nil)
