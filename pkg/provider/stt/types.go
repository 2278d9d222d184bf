package stt

import (
	"strings"
	"time"
)

// Transcript is the result of transcribing one clip.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Words contains per-word detail when available.
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// WordDetail holds per-word recognition data.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// PrimaryLanguage returns the lowercased primary subtag of a BCP-47 tag,
// e.g. "hi" for "hi-IN".
func PrimaryLanguage(tag string) string {
	primary, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(primary)
}
