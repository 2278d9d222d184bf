// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Spoken feedback arrives as one short recorded clip, so providers transcribe
// a whole clip in a single call. Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/cantor/pkg/audio"
)

// Options carries recognition hints for one transcription.
type Options struct {
	// Language is the BCP-47 tag of the speech, e.g. "en-IN". Empty lets
	// the provider auto-detect.
	Language string

	// Keywords are vocabulary hints, typically the words of the sacred text
	// and the performance tag names, that raise recognition probability.
	Keywords []string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the transcript of clip. The clip may have any sample
	// rate or channel count; providers convert as needed.
	Transcribe(ctx context.Context, clip audio.Clip, opts Options) (Transcript, error)
}
