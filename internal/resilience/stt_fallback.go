package resilience

import (
	"context"

	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over across several
// transcription backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe transcribes clip with the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, clip, opts)
	})
}

// Status reports the breaker state of every backend.
func (f *STTFallback) Status() []EntryStatus { return f.group.Status() }

// Available reports whether any backend currently admits calls.
func (f *STTFallback) Available() bool { return f.group.Available() }
