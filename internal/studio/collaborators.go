package studio

import (
	"context"

	"github.com/MrWong99/cantor/internal/interpret"
	"github.com/MrWong99/cantor/pkg/provider/tts"
)

// Interpreter turns feedback into markup and never fails.
// [*interpret.Dispatcher] implements it.
type Interpreter interface {
	Interpret(ctx context.Context, req interpret.Request) interpret.Result
}

// Voice is the speech configuration resolved for one synthesis.
type Voice struct {
	// Provider renders the markup.
	Provider tts.Provider

	// Backend names the provider in errors and metrics.
	Backend string

	// VoiceID is the backend voice identifier.
	VoiceID string

	// Model is the backend model identifier. Empty selects the backend
	// default.
	Model string
}

// Voicing resolves the speech collaborator at call time, so credentials and
// voice selections saved while a session is open take effect on its next
// synthesis.
type Voicing interface {
	// Enabled reports whether a speech credential is configured. Feedback
	// only triggers synthesis when it is.
	Enabled() bool

	// Voice resolves the voice for a language code. The error wraps
	// [ErrConfiguration] when the credential or the voice is missing.
	Voice(language string) (Voice, error)
}
