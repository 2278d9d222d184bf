// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns a marked-up sacred text into a single encoded audio
// clip. Batch synthesis is all the studio needs: every clip becomes one
// entry in a session's version list.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text with the requested voice and returns the
	// encoded audio. Providers that understand bracket performance tags pass
	// them through verbatim; others may read them aloud.
	Synthesize(ctx context.Context, req Request) (*Audio, error)

	// ListVoices returns all voices available from this provider. The list may
	// change between calls.
	ListVoices(ctx context.Context) ([]Voice, error)
}
