// Package transcript turns a spoken feedback clip into feedback text the
// interpreter can act on.
//
// The recorded clip goes to a speech-to-text provider with the words of the
// sacred text and the tag names as vocabulary hints. Speech recognition
// routinely mishears the one word the director is pointing at, so the
// [Corrector] then maps the feedback target back onto the closest word of
// the sacred text: first by pronunciation similarity, then optionally by
// asking a language model.
//
// Each [Correction] records which stage produced the substitution and its
// confidence, so callers can show what was changed.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/cantor/internal/markup"
	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/internal/transcript/phonetic"
	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/stt"
)

// ErrNoSpeech is returned when the clip transcribes to nothing.
var ErrNoSpeech = errors.New("transcript: no speech recognised")

// Correction is one word-level substitution.
type Correction struct {
	// Original is the target as heard.
	Original string `json:"original"`

	// Corrected is the sacred-text word it was replaced with.
	Corrected string `json:"corrected"`

	// Confidence is the stage's confidence in the substitution (0.0–1.0).
	Confidence float64 `json:"confidence"`

	// Method is "phonetic" or "llm".
	Method string `json:"method"`
}

// CorrectedTranscript is the result of a correction pass.
type CorrectedTranscript struct {
	// Original is the transcript as returned by the provider.
	Original stt.Transcript `json:"-"`

	// Corrected is the feedback text with the target repaired.
	Corrected string `json:"text"`

	// Target is the resolved target word after correction, or empty when
	// the feedback names none.
	Target string `json:"target,omitempty"`

	// Corrections is empty, never nil, when nothing changed.
	Corrections []Correction `json:"corrections"`
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithCorrector replaces the default [Corrector].
func WithCorrector(c *Corrector) PipelineOption {
	return func(p *Pipeline) { p.corrector = c }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithBackendName sets the provider label used in metrics. Default: "stt".
func WithBackendName(name string) PipelineOption {
	return func(p *Pipeline) { p.backend = name }
}

// Pipeline transcribes and corrects spoken feedback. It is safe for
// concurrent use.
type Pipeline struct {
	stt       stt.Provider
	corrector *Corrector
	metrics   *observe.Metrics
	backend   string
}

// NewPipeline returns a [Pipeline] over provider.
func NewPipeline(provider stt.Provider, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{stt: provider, backend: "stt"}
	for _, o := range opts {
		o(p)
	}
	if p.corrector == nil {
		p.corrector = NewCorrector()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Transcribe recognises the feedback in clip, spoken in language about
// sacredText, and corrects its target word.
func (p *Pipeline) Transcribe(ctx context.Context, clip audio.Clip, language, sacredText string) (*CorrectedTranscript, error) {
	ctx, span := observe.StartSpan(ctx, "transcribe")
	defer span.End()

	start := time.Now()
	t, err := p.stt.Transcribe(ctx, clip, stt.Options{
		Language: language,
		Keywords: Keywords(sacredText),
	})
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.FailSpan(span, err)
		p.metrics.RecordProviderRequest(ctx, p.backend, "stt", "error")
		p.metrics.RecordProviderError(ctx, p.backend, "stt")
		return nil, fmt.Errorf("transcript: transcribe: %w", err)
	}
	p.metrics.RecordProviderRequest(ctx, p.backend, "stt", "ok")

	if markup.Normalize(t.Text) == "" {
		return nil, ErrNoSpeech
	}

	out, err := p.corrector.Correct(ctx, t, sacredText)
	if err != nil {
		return nil, fmt.Errorf("transcript: correct: %w", err)
	}
	for _, c := range out.Corrections {
		observe.Logger(ctx).Info("corrected spoken target",
			"original", c.Original, "corrected", c.Corrected, "method", c.Method, "confidence", c.Confidence)
	}
	return out, nil
}

// Keywords returns the recognition hints for feedback about sacredText: its
// distinct words followed by the tag names.
func Keywords(sacredText string) []string {
	words := phonetic.NewVocabulary(markup.StripTags(sacredText)).Words()
	for _, t := range markup.Tags() {
		words = append(words, string(t))
	}
	return words
}
