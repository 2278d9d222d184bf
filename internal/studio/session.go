// Package studio implements the recording session: it owns the sacred text,
// the current markup, the bounded feedback history and the version list,
// and sequences feedback through interpretation and speech synthesis.
//
// Feedback is processed one utterance at a time per session. A generation
// counter that advances on every text change detects interpretations that
// finished against a replaced text; their results are discarded.
package studio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/cantor/internal/interpret"
	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/pkg/provider/tts"
)

// DefaultHistoryLimit is the number of feedback events a session keeps.
const DefaultHistoryLimit = 20

// FeedbackSource tells how feedback was given.
type FeedbackSource string

const (
	SourceTyped  FeedbackSource = "typed"
	SourceSpoken FeedbackSource = "spoken"
)

// FeedbackEvent is one entry of the feedback history.
type FeedbackEvent struct {
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Source    FeedbackSource `json:"source"`
}

// Trigger tells what produced a version.
type Trigger string

const (
	TriggerFeedback Trigger = "feedback"
	TriggerGenerate Trigger = "generate"
)

// VersionInfo describes a synthesised performance without its audio.
type VersionInfo struct {
	Number      int       `json:"number"`
	Markup      string    `json:"markup"`
	Language    string    `json:"language"`
	VoiceID     string    `json:"voice_id"`
	Model       string    `json:"model,omitempty"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	Trigger     Trigger   `json:"trigger"`
	CreatedAt   time.Time `json:"created_at"`
}

// Version is a synthesised performance.
type Version struct {
	VersionInfo
	Audio []byte `json:"-"`
}

// Outcome reports a processed feedback utterance.
type Outcome struct {
	Markup     string           `json:"markup"`
	Source     interpret.Source `json:"source"`
	Fallback   bool             `json:"fallback"`
	Generation uint64           `json:"generation"`

	// SynthesisQueued is true when a background synthesis was started.
	SynthesisQueued bool `json:"synthesis_queued"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	ID         string          `json:"id"`
	Language   string          `json:"language"`
	SacredText string          `json:"sacred_text"`
	Markup     string          `json:"markup"`
	Generation uint64          `json:"generation"`
	History    []FeedbackEvent `json:"history"`
	Versions   []VersionInfo   `json:"versions"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Config holds a session's collaborators and limits.
type Config struct {
	// Interpreter is required.
	Interpreter Interpreter

	// Voicing resolves speech synthesis. Nil disables synthesis.
	Voicing Voicing

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// HistoryLimit defaults to [DefaultHistoryLimit].
	HistoryLimit int

	// VersionLimit caps the version list, evicting the oldest. Zero keeps
	// every version.
	VersionLimit int

	// SynthesisTimeout bounds one synthesis call. Zero disables the bound.
	SynthesisTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Session is one director's working state. All methods are safe for
// concurrent use.
type Session struct {
	id  string
	cfg Config

	// slot serialises feedback processing; holding it means owning the
	// right to replace the markup from an interpretation.
	slot chan struct{}

	// bg is cancelled on Close and parents background synthesis.
	bg       context.Context
	cancelBg context.CancelFunc
	wg       sync.WaitGroup

	events *broker

	mu          sync.Mutex
	language    string
	text        string
	markup      string
	gen         uint64
	history     []FeedbackEvent
	versions    []Version
	lastVersion int
	createdAt   time.Time
	updatedAt   time.Time
	closed      bool
}

// NewSession creates a session in lang with its sample text loaded.
func NewSession(id string, lang Language, cfg Config) *Session {
	cfg.setDefaults()
	bg, cancel := context.WithCancel(context.Background())
	now := cfg.Now()
	return &Session{
		id:        id,
		cfg:       cfg,
		slot:      make(chan struct{}, 1),
		bg:        bg,
		cancelBg:  cancel,
		events:    newBroker(),
		language:  lang.Code,
		text:      strings.TrimSpace(lang.SampleText),
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ProcessFeedback records feedback in the history, interprets it against
// the current markup and stores the result as the new markup. When speech
// synthesis is enabled a background synthesis of the new markup starts.
//
// Calls are serialised; a call waits for the one before it or until ctx is
// done. It returns [ErrMissingInput] for blank feedback or a blank sacred
// text and [ErrStaleResult] when the text was replaced during
// interpretation.
func (s *Session) ProcessFeedback(ctx context.Context, feedback string, source FeedbackSource) (Outcome, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return Outcome{}, fmt.Errorf("%w: feedback is empty", ErrMissingInput)
	}
	if source == "" {
		source = SourceTyped
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	defer func() { <-s.slot }()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	now := s.cfg.Now()
	s.recordLocked(FeedbackEvent{Text: feedback, Timestamp: now, Source: source})
	req := interpret.Request{SacredText: s.text, Feedback: feedback, CurrentMarkup: s.markup}
	gen := s.gen
	s.mu.Unlock()

	s.publish(Event{Kind: EventFeedbackRecorded, Generation: gen, Text: feedback})

	if req.SacredText == "" {
		return Outcome{}, fmt.Errorf("%w: sacred text is empty", ErrMissingInput)
	}

	res := s.cfg.Interpreter.Interpret(ctx, req)
	log := observe.Logger(ctx).With("session_id", s.id)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	if s.gen != gen {
		current := s.gen
		s.mu.Unlock()
		log.Info("discarding interpretation of a replaced text", "generation", gen, "current", current)
		s.cfg.Metrics.RecordFeedback(ctx, string(source), "discarded")
		s.publish(Event{Kind: EventFeedbackDiscarded, Generation: current, Text: feedback})
		return Outcome{}, ErrStaleResult
	}
	s.markup = res.Markup
	s.updatedAt = s.cfg.Now()
	lang := s.language
	s.mu.Unlock()

	s.cfg.Metrics.RecordFeedback(ctx, string(source), "applied")
	s.publish(Event{Kind: EventMarkupUpdated, Generation: gen, Markup: res.Markup, Source: string(res.Source)})
	log.Debug("markup updated", "source", res.Source, "fallback", res.UpstreamErr != nil)

	out := Outcome{
		Markup:     res.Markup,
		Source:     res.Source,
		Fallback:   res.UpstreamErr != nil,
		Generation: gen,
	}
	if s.cfg.Voicing != nil && s.cfg.Voicing.Enabled() {
		out.SynthesisQueued = s.synthesizeInBackground(gen, res.Markup, lang)
	}
	return out, nil
}

// recordLocked prepends ev to the history and evicts beyond the limit.
func (s *Session) recordLocked(ev FeedbackEvent) {
	s.history = slices.Insert(s.history, 0, ev)
	if len(s.history) > s.cfg.HistoryLimit {
		s.history = s.history[:s.cfg.HistoryLimit]
	}
}

// synthesizeInBackground renders markup without blocking the caller. The
// resulting version is kept only if the markup is still current when the
// audio arrives.
func (s *Session) synthesizeInBackground(gen uint64, markup, lang string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.publish(Event{Kind: EventSynthesisStarted, Generation: gen, Markup: markup})
	go func() {
		defer s.wg.Done()
		v, err := s.synthesize(s.bg, markup, lang, TriggerFeedback)
		if err != nil {
			if s.bg.Err() != nil {
				return
			}
			slog.Warn("background synthesis failed", "session_id", s.id, "error", err)
			s.publish(Event{Kind: EventSynthesisFailed, Generation: gen, Error: err.Error()})
			return
		}

		s.mu.Lock()
		if s.closed || s.gen != gen || s.markup != markup {
			s.mu.Unlock()
			slog.Debug("dropping audio for superseded markup", "session_id", s.id)
			return
		}
		info := s.appendVersionLocked(v)
		s.mu.Unlock()
		s.publish(Event{Kind: EventVersionCreated, Generation: gen, Version: &info})
	}()
	return true
}

// Generate synthesises the current markup, or the sacred text when no
// markup exists yet, and records the result as a new version.
func (s *Session) Generate(ctx context.Context) (VersionInfo, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return VersionInfo{}, ErrClosed
	}
	text, markup, lang, gen := s.text, s.markup, s.language, s.gen
	s.mu.Unlock()

	if s.cfg.Voicing == nil || !s.cfg.Voicing.Enabled() {
		return VersionInfo{}, fmt.Errorf("%w: no speech synthesis credential", ErrConfiguration)
	}
	if text == "" {
		return VersionInfo{}, fmt.Errorf("%w: sacred text is empty", ErrMissingInput)
	}
	payload := markup
	if payload == "" {
		payload = text
	}

	v, err := s.synthesize(ctx, payload, lang, TriggerGenerate)
	if err != nil {
		s.publish(Event{Kind: EventSynthesisFailed, Generation: gen, Error: err.Error()})
		return VersionInfo{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return VersionInfo{}, ErrClosed
	}
	info := s.appendVersionLocked(v)
	s.mu.Unlock()
	s.publish(Event{Kind: EventVersionCreated, Generation: gen, Version: &info})
	return info, nil
}

func (s *Session) synthesize(ctx context.Context, markup, lang string, trigger Trigger) (Version, error) {
	voice, err := s.cfg.Voicing.Voice(lang)
	if err != nil {
		return Version{}, err
	}
	if s.cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SynthesisTimeout)
		defer cancel()
	}

	ctx, span := observe.StartSpan(ctx, "synthesize")
	defer span.End()

	start := time.Now()
	audio, err := voice.Provider.Synthesize(ctx, tts.Request{
		Text:     markup,
		VoiceID:  voice.VoiceID,
		Model:    voice.Model,
		Language: lang,
	})
	s.cfg.Metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.FailSpan(span, err)
		s.cfg.Metrics.RecordProviderRequest(ctx, voice.Backend, "tts", "error")
		s.cfg.Metrics.RecordProviderError(ctx, voice.Backend, "tts")
		return Version{}, &SynthesisError{Provider: voice.Backend, Err: err}
	}
	s.cfg.Metrics.RecordProviderRequest(ctx, voice.Backend, "tts", "ok")

	model := audio.Model
	if model == "" {
		model = voice.Model
	}
	return Version{
		VersionInfo: VersionInfo{
			Markup:      markup,
			Language:    lang,
			VoiceID:     voice.VoiceID,
			Model:       model,
			ContentType: audio.ContentType,
			Size:        len(audio.Data),
			Trigger:     trigger,
		},
		Audio: audio.Data,
	}, nil
}

// appendVersionLocked numbers v, stores it and returns its description.
func (s *Session) appendVersionLocked(v Version) VersionInfo {
	s.lastVersion++
	v.Number = s.lastVersion
	v.CreatedAt = s.cfg.Now()
	s.versions = append(s.versions, v)
	if lim := s.cfg.VersionLimit; lim > 0 && len(s.versions) > lim {
		s.versions = slices.Delete(s.versions, 0, len(s.versions)-lim)
	}
	s.updatedAt = v.CreatedAt
	return v.VersionInfo
}

// SetText replaces the sacred text. The markup is cleared because its tags
// were placed against the old words, and any interpretation in flight will
// be discarded. Setting the current text again changes nothing.
func (s *Session) SetText(text string) error {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if text == s.text {
		s.mu.Unlock()
		return nil
	}
	gen := s.replaceTextLocked(text)
	s.mu.Unlock()

	s.publish(Event{Kind: EventTextChanged, Generation: gen, Text: text})
	return nil
}

func (s *Session) replaceTextLocked(text string) uint64 {
	s.text = text
	s.markup = ""
	s.gen++
	s.updatedAt = s.cfg.Now()
	return s.gen
}

// SetLanguage switches the session language and loads its sample text,
// which counts as a text change.
func (s *Session) SetLanguage(lang Language) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.language = lang.Code
	text := strings.TrimSpace(lang.SampleText)
	gen := s.replaceTextLocked(text)
	s.mu.Unlock()

	s.publish(Event{Kind: EventTextChanged, Generation: gen, Text: text})
	return nil
}

// Language returns the current language code.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SacredText returns the current sacred text.
func (s *Session) SacredText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.id,
		Language:   s.language,
		SacredText: s.text,
		Markup:     s.markup,
		Generation: s.gen,
		History:    slices.Clone(s.history),
		Versions:   s.versionInfosLocked(),
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}

// History returns the feedback history, newest first.
func (s *Session) History() []FeedbackEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Versions describes the stored versions, oldest first.
func (s *Session) Versions() []VersionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionInfosLocked()
}

func (s *Session) versionInfosLocked() []VersionInfo {
	out := make([]VersionInfo, len(s.versions))
	for i, v := range s.versions {
		out[i] = v.VersionInfo
	}
	return out
}

// Version returns a stored version including its audio.
func (s *Session) Version(number int) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.Number == number {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%w: %d", ErrVersionNotFound, number)
}

// LastActivity returns the time of the last state change.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Subscribe returns a channel of session events and a function that ends
// the subscription. Slow subscribers miss events rather than stall the
// session. The channel is closed when the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

func (s *Session) publish(ev Event) {
	ev.SessionID = s.id
	ev.At = s.cfg.Now()
	s.events.publish(ev)
}

// Close cancels background synthesis, waits for it to stop and ends all
// subscriptions. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	gen := s.gen
	s.mu.Unlock()

	s.cancelBg()
	s.wg.Wait()
	s.publish(Event{Kind: EventSessionClosed, Generation: gen})
	s.events.close()
	return nil
}
