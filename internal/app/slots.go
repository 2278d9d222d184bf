package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/cantor/internal/interpret"
	"github.com/MrWong99/cantor/internal/resilience"
	"github.com/MrWong99/cantor/internal/settings"
	"github.com/MrWong99/cantor/internal/studio"
	"github.com/MrWong99/cantor/internal/transcript"
	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/tts"
)

// The slots below hold collaborators that are rebuilt when the config file
// or the studio settings change. Sessions hold the slot, so a rebuild takes
// effect on their next call.

// interpreterSlot implements [studio.Interpreter] over the current
// dispatcher.
type interpreterSlot struct {
	current atomic.Pointer[interpret.Dispatcher]
	group   atomic.Pointer[resilience.LLMFallback]
}

func (s *interpreterSlot) Interpret(ctx context.Context, req interpret.Request) interpret.Result {
	return s.current.Load().Interpret(ctx, req)
}

// speechBackend is the resolved speech synthesis configuration.
type speechBackend struct {
	group        *resilience.TTSFallback
	backend      string
	model        string
	defaultVoice string
}

// voicing implements [studio.Voicing] and [api.VoiceLister].
type voicing struct {
	settings *settings.Service
	current  atomic.Pointer[speechBackend]
}

func (v *voicing) Enabled() bool { return v.current.Load() != nil }

// Voice picks the voice saved for lang, then the backend's configured
// voice, then the first voice of the saved list.
func (v *voicing) Voice(lang string) (studio.Voice, error) {
	b := v.current.Load()
	if b == nil {
		return studio.Voice{}, fmt.Errorf("%w: no speech synthesis credential", studio.ErrConfiguration)
	}
	st := v.settings.Get()

	id := st.VoiceFor(lang)
	if id == "" {
		id = b.defaultVoice
	}
	if id == "" && b.backend == DefaultTTSBackend && len(st.CustomVoices) > 0 {
		id = st.CustomVoices[0].ID
	}
	if id == "" {
		return studio.Voice{}, fmt.Errorf("%w: no voice selected for %s", studio.ErrConfiguration, lang)
	}

	model := b.model
	if b.backend == DefaultTTSBackend && st.TTSModel != "" {
		model = st.TTSModel
	}
	return studio.Voice{Provider: b.group, Backend: b.backend, VoiceID: id, Model: model}, nil
}

func (v *voicing) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	b := v.current.Load()
	if b == nil {
		return nil, fmt.Errorf("%w: no speech synthesis credential", studio.ErrConfiguration)
	}
	return b.group.ListVoices(ctx)
}

// recognition is the resolved speech recognition configuration.
type recognition struct {
	pipeline *transcript.Pipeline
	group    *resilience.STTFallback
}

// transcriberSlot implements [api.Transcriber].
type transcriberSlot struct {
	current atomic.Pointer[recognition]
}

func (s *transcriberSlot) Transcribe(ctx context.Context, clip audio.Clip, language, sacredText string) (*transcript.CorrectedTranscript, error) {
	r := s.current.Load()
	if r == nil {
		return nil, fmt.Errorf("%w: no speech recognition backend", studio.ErrConfiguration)
	}
	return r.pipeline.Transcribe(ctx, clip, language, sacredText)
}
