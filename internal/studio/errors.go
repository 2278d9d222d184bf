package studio

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is returned when feedback arrives without a sacred
	// text, when the feedback itself is blank, or when synthesis is asked
	// for with no text.
	ErrMissingInput = errors.New("studio: missing input")

	// ErrConfiguration is returned when a speech credential or a voice for
	// the session language is absent.
	ErrConfiguration = errors.New("studio: not configured")

	// ErrStaleResult is returned by [Session.ProcessFeedback] when the
	// sacred text changed while the feedback was being interpreted. The
	// result was discarded.
	ErrStaleResult = errors.New("studio: result computed against a replaced text")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("studio: session closed")

	// ErrUnknownLanguage is returned for language codes outside the catalogue.
	ErrUnknownLanguage = errors.New("studio: unknown language")

	// ErrSessionNotFound is returned by [Manager.Get] for unknown IDs.
	ErrSessionNotFound = errors.New("studio: session not found")

	// ErrVersionNotFound is returned by [Session.Version] for unknown numbers.
	ErrVersionNotFound = errors.New("studio: version not found")
)

// SynthesisError wraps a failure of the speech synthesis collaborator. Its
// message is shown to the user as is.
type SynthesisError struct {
	// Provider names the backend that failed, when known.
	Provider string

	Err error
}

func (e *SynthesisError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("studio: synthesis via %s failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("studio: synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
