package resilience

import (
	"context"

	"github.com/MrWong99/cantor/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over across several speech
// synthesis backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders req with the first healthy backend. Voice IDs are
// backend specific, so a fallback may reject a voice chosen for the primary;
// that counts as a failure of the fallback like any other.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, req)
	})
}

// ListVoices returns the catalogue of the first backend that answers.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}

// Status reports the breaker state of every backend.
func (f *TTSFallback) Status() []EntryStatus { return f.group.Status() }

// Available reports whether any backend currently admits calls.
func (f *TTSFallback) Available() bool { return f.group.Available() }
