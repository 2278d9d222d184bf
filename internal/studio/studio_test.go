package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/cantor/internal/interpret"
	"github.com/MrWong99/cantor/internal/markup"
	"github.com/MrWong99/cantor/pkg/provider/tts"
	ttsmock "github.com/MrWong99/cantor/pkg/provider/tts/mock"
)

var english = Language{Code: "en-IN", Name: "Indian English", SampleText: "In the beginning, God created the heavens and the earth."}

// ─── test doubles ─────────────────────────────────────────────────────────────

// blockingInterpreter signals entry on started and waits for release.
type blockingInterpreter struct {
	started chan struct{}
	release chan struct{}
	inner   Interpreter
}

func newBlockingInterpreter() *blockingInterpreter {
	return &blockingInterpreter{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		inner:   interpret.NewDispatcher(),
	}
}

func (b *blockingInterpreter) Interpret(ctx context.Context, req interpret.Request) interpret.Result {
	b.started <- struct{}{}
	<-b.release
	return b.inner.Interpret(ctx, req)
}

// countingInterpreter tracks the peak number of concurrent calls.
type countingInterpreter struct {
	active, peak atomic.Int32
}

func (c *countingInterpreter) Interpret(_ context.Context, req interpret.Request) interpret.Result {
	n := c.active.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	c.active.Add(-1)
	return interpret.Result{Markup: req.Base(), Source: interpret.SourceRules}
}

type failingModel struct{}

func (failingModel) Interpret(context.Context, interpret.Request) (string, error) {
	return "", fmt.Errorf("%w: boom", interpret.ErrUpstream)
}

type fakeVoicing struct {
	enabled  bool
	provider tts.Provider
	err      error
}

func (f *fakeVoicing) Enabled() bool { return f.enabled }

func (f *fakeVoicing) Voice(string) (Voice, error) {
	if f.err != nil {
		return Voice{}, f.err
	}
	return Voice{Provider: f.provider, Backend: "mock", VoiceID: "v1", Model: "m1"}, nil
}

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	if cfg.Interpreter == nil {
		cfg.Interpreter = interpret.NewDispatcher()
	}
	s := NewSession("s1", english, cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitFor returns the first event of the given kind or fails after a second.
func waitFor(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed before %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

// ─── feedback ─────────────────────────────────────────────────────────────────

func TestProcessFeedback_AppliesRules(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, Config{})
	const fb = "more emphasis on God"

	out, err := s.ProcessFeedback(context.Background(), fb, SourceTyped)
	if err != nil {
		t.Fatalf("ProcessFeedback: %v", err)
	}
	want := markup.InterpretWithRules(english.SampleText, fb, "")
	if out.Markup != want {
		t.Errorf("markup = %q, want %q", out.Markup, want)
	}
	if out.Source != interpret.SourceRules || out.Fallback {
		t.Errorf("source = %s fallback = %v, want rules without fallback", out.Source, out.Fallback)
	}
	if out.SynthesisQueued {
		t.Error("synthesis queued without voicing")
	}
	if got := s.Snapshot().Markup; got != want {
		t.Errorf("snapshot markup = %q, want %q", got, want)
	}
}

func TestProcessFeedback_BuildsOnCurrentMarkup(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, Config{})
	ctx := context.Background()

	first, err := s.ProcessFeedback(ctx, "more emphasis on God", SourceTyped)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.ProcessFeedback(ctx, "pause after beginning", SourceSpoken)
	if err != nil {
		t.Fatal(err)
	}
	want := markup.InterpretWithRules(english.SampleText, "pause after beginning", first.Markup)
	if second.Markup != want {
		t.Errorf("markup = %q, want %q", second.Markup, want)
	}
}

func TestProcessFeedback_HistoryBoundedNewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, Config{})
	for i := range 25 {
		if _, err := s.ProcessFeedback(context.Background(), fmt.Sprintf("feedback %d", i), SourceTyped); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
	}

	h := s.History()
	if len(h) != DefaultHistoryLimit {
		t.Fatalf("history length = %d, want %d", len(h), DefaultHistoryLimit)
	}
	if h[0].Text != "feedback 24" {
		t.Errorf("newest = %q, want %q", h[0].Text, "feedback 24")
	}
	if h[len(h)-1].Text != "feedback 5" {
		t.Errorf("oldest = %q, want %q", h[len(h)-1].Text, "feedback 5")
	}
}

func TestProcessFeedback_MissingInput(t *testing.T) {
	t.Parallel()

	t.Run("blank feedback", func(t *testing.T) {
		t.Parallel()
		s := newTestSession(t, Config{})
		_, err := s.ProcessFeedback(context.Background(), "   ", SourceTyped)
		if !errors.Is(err, ErrMissingInput) {
			t.Fatalf("err = %v, want ErrMissingInput", err)
		}
		if n := len(s.History()); n != 0 {
			t.Errorf("history length = %d, want 0", n)
		}
	})

	t.Run("blank sacred text", func(t *testing.T) {
		t.Parallel()
		s := newTestSession(t, Config{})
		if err := s.SetText(""); err != nil {
			t.Fatal(err)
		}
		_, err := s.ProcessFeedback(context.Background(), "louder", SourceTyped)
		if !errors.Is(err, ErrMissingInput) {
			t.Fatalf("err = %v, want ErrMissingInput", err)
		}
		if n := len(s.History()); n != 1 {
			t.Errorf("history length = %d, want 1", n)
		}
	})
}

func TestProcessFeedback_StaleResultDiscarded(t *testing.T) {
	t.Parallel()

	bi := newBlockingInterpreter()
	s := newTestSession(t, Config{Interpreter: bi})
	events, cancel := s.Subscribe()
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := s.ProcessFeedback(context.Background(), "more emphasis on God", SourceTyped)
		errc <- err
	}()

	<-bi.started
	if err := s.SetText("Jesus wept."); err != nil {
		t.Fatal(err)
	}
	close(bi.release)

	if err := <-errc; !errors.Is(err, ErrStaleResult) {
		t.Fatalf("err = %v, want ErrStaleResult", err)
	}
	snap := s.Snapshot()
	if snap.Markup != "" {
		t.Errorf("markup = %q, want empty after discard", snap.Markup)
	}
	if snap.SacredText != "Jesus wept." {
		t.Errorf("text = %q", snap.SacredText)
	}
	waitFor(t, events, EventFeedbackDiscarded)
}

func TestProcessFeedback_Serialized(t *testing.T) {
	t.Parallel()

	ci := &countingInterpreter{}
	s := newTestSession(t, Config{Interpreter: ci})

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ProcessFeedback(context.Background(), fmt.Sprintf("louder %d", i), SourceTyped); err != nil {
				t.Errorf("feedback %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	if p := ci.peak.Load(); p != 1 {
		t.Errorf("peak concurrent interpretations = %d, want 1", p)
	}
	if n := len(s.History()); n != 6 {
		t.Errorf("history length = %d, want 6", n)
	}
}

func TestProcessFeedback_CancelledWhileQueued(t *testing.T) {
	t.Parallel()

	bi := newBlockingInterpreter()
	s := newTestSession(t, Config{Interpreter: bi})

	go func() { _, _ = s.ProcessFeedback(context.Background(), "louder", SourceTyped) }()
	<-bi.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ProcessFeedback(ctx, "softer", SourceTyped)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	close(bi.release)
}

func TestProcessFeedback_FallbackMatchesRules(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, Config{
		Interpreter: interpret.NewDispatcher(interpret.WithModel(failingModel{})),
	})
	const fb = "whisper the heavens"

	out, err := s.ProcessFeedback(context.Background(), fb, SourceTyped)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Fallback || out.Source != interpret.SourceRules {
		t.Errorf("fallback = %v source = %s, want rules fallback", out.Fallback, out.Source)
	}
	if want := markup.InterpretWithRules(english.SampleText, fb, ""); out.Markup != want {
		t.Errorf("markup = %q, want %q", out.Markup, want)
	}
}

// ─── synthesis ────────────────────────────────────────────────────────────────

func TestProcessFeedback_BackgroundSynthesis(t *testing.T) {
	t.Parallel()

	provider := &ttsmock.Provider{}
	s := newTestSession(t, Config{Voicing: &fakeVoicing{enabled: true, provider: provider}})
	events, cancel := s.Subscribe()
	defer cancel()

	out, err := s.ProcessFeedback(context.Background(), "slower", SourceTyped)
	if err != nil {
		t.Fatal(err)
	}
	if !out.SynthesisQueued {
		t.Fatal("synthesis not queued")
	}

	ev := waitFor(t, events, EventVersionCreated)
	if ev.Version == nil || ev.Version.Number != 1 || ev.Version.Trigger != TriggerFeedback {
		t.Fatalf("version event = %+v", ev.Version)
	}
	if ev.Version.Markup != out.Markup {
		t.Errorf("version markup = %q, want %q", ev.Version.Markup, out.Markup)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("synthesize calls = %d, want 1", len(calls))
	}
	if req := calls[0].Req; req.Text != out.Markup || req.VoiceID != "v1" || req.Language != "en-IN" {
		t.Errorf("request = %+v", req)
	}
}

func TestProcessFeedback_SupersededAudioDropped(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	provider := &ttsmock.Provider{
		SynthesizeFunc: func(_ context.Context, req tts.Request) (*tts.Audio, error) {
			<-release
			return &tts.Audio{Data: []byte(req.Text), ContentType: "audio/mpeg"}, nil
		},
	}
	s := newTestSession(t, Config{Voicing: &fakeVoicing{enabled: true, provider: provider}})
	events, cancel := s.Subscribe()
	defer cancel()

	if _, err := s.ProcessFeedback(context.Background(), "slower", SourceTyped); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, EventSynthesisStarted)
	if err := s.SetText("Jesus wept."); err != nil {
		t.Fatal(err)
	}
	close(release)

	// Close waits for the background synthesis to finish.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Versions()); n != 0 {
		t.Errorf("versions = %d, want 0", n)
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		voicing Voicing
		text    string
		check   func(error) bool
	}{
		{
			name:  "no voicing",
			text:  english.SampleText,
			check: func(err error) bool { return errors.Is(err, ErrConfiguration) },
		},
		{
			name:    "credential missing",
			voicing: &fakeVoicing{enabled: false},
			text:    english.SampleText,
			check:   func(err error) bool { return errors.Is(err, ErrConfiguration) },
		},
		{
			name:    "voice missing",
			voicing: &fakeVoicing{enabled: true, err: fmt.Errorf("%w: no voice for en-IN", ErrConfiguration)},
			text:    english.SampleText,
			check:   func(err error) bool { return errors.Is(err, ErrConfiguration) },
		},
		{
			name:    "empty text",
			voicing: &fakeVoicing{enabled: true, provider: &ttsmock.Provider{}},
			text:    "",
			check:   func(err error) bool { return errors.Is(err, ErrMissingInput) },
		},
		{
			name:    "backend failure",
			voicing: &fakeVoicing{enabled: true, provider: &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}},
			text:    english.SampleText,
			check: func(err error) bool {
				var se *SynthesisError
				return errors.As(err, &se) && se.Provider == "mock"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestSession(t, Config{Voicing: tt.voicing})
			if err := s.SetText(tt.text); err != nil {
				t.Fatal(err)
			}
			_, err := s.Generate(context.Background())
			if err == nil || !tt.check(err) {
				t.Fatalf("Generate err = %v", err)
			}
			if n := len(s.Versions()); n != 0 {
				t.Errorf("versions = %d, want 0", n)
			}
		})
	}
}

func TestGenerate_UsesTextWithoutMarkup(t *testing.T) {
	t.Parallel()

	provider := &ttsmock.Provider{}
	s := newTestSession(t, Config{Voicing: &fakeVoicing{enabled: true, provider: provider}})

	v, err := s.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if v.Number != 1 || v.Trigger != TriggerGenerate || v.Markup != english.SampleText {
		t.Errorf("version = %+v", v)
	}
	full, err := s.Version(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(full.Audio) != english.SampleText {
		t.Errorf("audio = %q", full.Audio)
	}
	if _, err := s.Version(2); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("Version(2) err = %v, want ErrVersionNotFound", err)
	}
}

func TestGenerate_VersionLimit(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, Config{
		Voicing:      &fakeVoicing{enabled: true, provider: &ttsmock.Provider{}},
		VersionLimit: 2,
	})
	for range 3 {
		if _, err := s.Generate(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	vs := s.Versions()
	if len(vs) != 2 || vs[0].Number != 2 || vs[1].Number != 3 {
		t.Errorf("versions = %+v, want numbers 2 and 3", vs)
	}
}

// ─── text and language ────────────────────────────────────────────────────────

func TestSetText(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, Config{})
	if _, err := s.ProcessFeedback(context.Background(), "louder", SourceTyped); err != nil {
		t.Fatal(err)
	}

	before := s.Snapshot()
	if err := s.SetText("  " + english.SampleText + " "); err != nil {
		t.Fatal(err)
	}
	if after := s.Snapshot(); after.Generation != before.Generation || after.Markup != before.Markup {
		t.Errorf("identical text changed state: %+v -> %+v", before, after)
	}

	if err := s.SetText("Jesus wept."); err != nil {
		t.Fatal(err)
	}
	after := s.Snapshot()
	if after.Generation != before.Generation+1 {
		t.Errorf("generation = %d, want %d", after.Generation, before.Generation+1)
	}
	if after.Markup != "" {
		t.Errorf("markup = %q, want cleared", after.Markup)
	}
	if len(after.History) != 1 {
		t.Errorf("history length = %d, want kept", len(after.History))
	}
}

func TestSetLanguage(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, Config{})
	pt := DefaultLanguages()[2]
	if err := s.SetLanguage(pt); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.Language != "pt-BR" || snap.SacredText != pt.SampleText || snap.Generation != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", english, Config{Interpreter: interpret.NewDispatcher()})
	events, _ := s.Subscribe()

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	waitFor(t, events, EventSessionClosed)
	if _, ok := <-events; ok {
		t.Error("event channel still open")
	}

	if _, err := s.ProcessFeedback(context.Background(), "louder", SourceTyped); !errors.Is(err, ErrClosed) {
		t.Errorf("ProcessFeedback err = %v, want ErrClosed", err)
	}
	if err := s.SetText("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetText err = %v, want ErrClosed", err)
	}
	late, _ := s.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after close delivered an event")
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, Config{})
	events, cancel := s.Subscribe()
	cancel()
	cancel()

	if err := s.SetText("Jesus wept."); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-events; ok {
		t.Error("cancelled subscription delivered an event")
	}
}
