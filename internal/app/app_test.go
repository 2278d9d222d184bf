package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cantor/internal/config"
	"github.com/MrWong99/cantor/internal/interpret"
	"github.com/MrWong99/cantor/internal/settings"
	"github.com/MrWong99/cantor/internal/studio"
	"github.com/MrWong99/cantor/pkg/provider/llm"
	llmmock "github.com/MrWong99/cantor/pkg/provider/llm/mock"
	"github.com/MrWong99/cantor/pkg/provider/stt"
	sttmock "github.com/MrWong99/cantor/pkg/provider/stt/mock"
	"github.com/MrWong99/cantor/pkg/provider/tts"
	ttsmock "github.com/MrWong99/cantor/pkg/provider/tts/mock"
)

const genesis = "In the beginning, God created the heavens and the earth."

type memStore struct {
	mu sync.Mutex
	s  settings.Settings
}

func (m *memStore) Load(context.Context) (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone(), nil
}

func (m *memStore) Save(_ context.Context, s settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s.Clone()
	return nil
}

// recordingRegistry registers mock factories and records the entries they
// were built from.
type recordingRegistry struct {
	*config.Registry

	mu      sync.Mutex
	entries map[string][]config.ProviderEntry

	llm *llmmock.Provider
	tts *ttsmock.Provider
	stt *sttmock.Provider
}

func newRecordingRegistry() *recordingRegistry {
	r := &recordingRegistry{
		Registry: config.NewRegistry(),
		entries:  make(map[string][]config.ProviderEntry),
		llm: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
			Content: "In the beginning, [pause] God created the heavens and the earth.",
		}},
		tts: &ttsmock.Provider{},
		stt: &sttmock.Provider{},
	}
	for _, name := range []string{"anthropic", "ollama"} {
		r.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			r.record(e)
			return r.llm, nil
		})
	}
	for _, name := range []string{"elevenlabs", "coqui"} {
		r.RegisterTTS(name, func(e config.ProviderEntry) (tts.Provider, error) {
			r.record(e)
			return r.tts, nil
		})
	}
	r.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		r.record(e)
		return r.stt, nil
	})
	return r
}

func (r *recordingRegistry) record(e config.ProviderEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Name] = append(r.entries[e.Name], e)
}

func (r *recordingRegistry) last(name string) (config.ProviderEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	es := r.entries[name]
	if len(es) == 0 {
		return config.ProviderEntry{}, false
	}
	return es[len(es)-1], true
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, reg *recordingRegistry, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithSettingsStore(&memStore{s: settings.Default()})}, opts...)
	a, err := New(context.Background(), cfg, reg.Registry, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func feedback(t *testing.T, a *App, text string) studio.Outcome {
	t.Helper()
	s, err := a.Manager().Create(context.Background(), "en-IN")
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.ProcessFeedback(context.Background(), text, studio.SourceTyped)
	if err != nil {
		t.Fatalf("ProcessFeedback: %v", err)
	}
	return out
}

// ── construction ─────────────────────────────────────────────────────────────

func TestNew_RulesOnly(t *testing.T) {
	t.Parallel()

	reg := newRecordingRegistry()
	a := newTestApp(t, testConfig(), reg)

	out := feedback(t, a, "pause before 'God'")
	if out.Source != interpret.SourceRules {
		t.Errorf("source = %s, want rules", out.Source)
	}
	if a.voice.Enabled() {
		t.Error("speech enabled without credential")
	}
	if len(reg.llm.Calls()) != 0 {
		t.Error("language model called without configuration")
	}

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	resp, err := srv.Client().Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body.Checks["settings"] != "ok" {
		t.Errorf("readyz = %d %+v", resp.StatusCode, body)
	}
	if body.Checks["llm"] != "degraded: not configured" {
		t.Errorf("llm check = %q", body.Checks["llm"])
	}
}

func TestNew_FactoryErrorFails(t *testing.T) {
	t.Parallel()

	reg := newRecordingRegistry()
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) {
		return nil, errors.New("bad server url")
	})
	cfg := testConfig()
	cfg.Providers.TTS = config.ProviderEntry{Name: "broken", APIKey: "k"}

	_, err := New(context.Background(), cfg, reg.Registry, WithSettingsStore(&memStore{s: settings.Default()}))
	if err == nil {
		t.Fatal("expected error from failing factory")
	}
}

func TestNew_UnregisteredProviderSkipped(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers.LLM = config.ProviderEntry{Name: "mystery", APIKey: "k"}
	a := newTestApp(t, cfg, newRecordingRegistry())

	if out := feedback(t, a, "slower"); out.Source != interpret.SourceRules {
		t.Errorf("source = %s, want rules", out.Source)
	}
}

// ── credentials from settings ────────────────────────────────────────────────

func TestSettingsCredentialsEnableBackends(t *testing.T) {
	t.Parallel()

	reg := newRecordingRegistry()
	a := newTestApp(t, testConfig(), reg)

	_, err := a.Settings().Update(context.Background(), settings.Settings{
		LLMAPIKey:      "sk-ant-1",
		TTSAPIKey:      "sk-el-1",
		SelectedVoices: map[string]string{"en-IN": "voice-9"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if e, ok := reg.last(DefaultLLMBackend); !ok || e.APIKey != "sk-ant-1" {
		t.Errorf("llm entry = %+v, %v", e, ok)
	}
	if e, ok := reg.last(DefaultTTSBackend); !ok || e.APIKey != "sk-el-1" {
		t.Errorf("tts entry = %+v, %v", e, ok)
	}

	out := feedback(t, a, "pause before 'God'")
	if out.Source != interpret.SourceLLM || out.Fallback {
		t.Errorf("source = %s fallback = %v, want llm", out.Source, out.Fallback)
	}

	voice, err := a.voice.Voice("en-IN")
	if err != nil {
		t.Fatal(err)
	}
	if voice.VoiceID != "voice-9" || voice.Model != settings.DefaultTTSModel || voice.Backend != DefaultTTSBackend {
		t.Errorf("voice = %+v", voice)
	}

	// Clearing the keys disables both again.
	if _, err := a.Settings().Update(context.Background(), settings.Settings{}); err != nil {
		t.Fatal(err)
	}
	if a.voice.Enabled() {
		t.Error("speech still enabled after clearing the key")
	}
	if out := feedback(t, a, "slower"); out.Source != interpret.SourceRules {
		t.Errorf("source after clearing = %s", out.Source)
	}
}

func TestLLMFailureFallsBackToRules(t *testing.T) {
	t.Parallel()

	reg := newRecordingRegistry()
	reg.llm.CompleteErr = errors.New("529 overloaded")
	cfg := testConfig()
	cfg.Providers.LLM = config.ProviderEntry{Name: "ollama"}
	a := newTestApp(t, cfg, reg)

	out := feedback(t, a, "pause before 'God'")
	if out.Source != interpret.SourceRules || !out.Fallback {
		t.Errorf("source = %s fallback = %v, want rules fallback", out.Source, out.Fallback)
	}
	if out.Markup != "In the beginning, [pause] God created the heavens and the earth." {
		t.Errorf("markup = %q", out.Markup)
	}
}

func TestEntries(t *testing.T) {
	t.Parallel()

	p := config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "openai", APIKey: "cfg-key"},
		LLMFallbacks: []config.ProviderEntry{{Name: "ollama"}, {Name: "groq"}},
		TTS:          config.ProviderEntry{Name: "coqui"},
		STT:          config.ProviderEntry{Name: "deepgram"},
		STTFallbacks: []config.ProviderEntry{{Name: "whisper"}},
	}

	got := llmEntries(p, settings.Settings{LLMAPIKey: "saved"})
	if len(got) != 2 || got[0].APIKey != "saved" || got[1].Name != "ollama" {
		t.Errorf("llm entries = %+v", got)
	}
	if got := llmEntries(config.ProvidersConfig{}, settings.Settings{}); len(got) != 0 {
		t.Errorf("llm entries without key = %+v", got)
	}
	if got := llmEntries(config.ProvidersConfig{}, settings.Settings{LLMAPIKey: "k"}); len(got) != 1 || got[0].Name != DefaultLLMBackend {
		t.Errorf("default llm entry = %+v", got)
	}

	got = ttsEntries(p, settings.Settings{TTSAPIKey: "saved"})
	if len(got) != 1 || got[0].Name != "coqui" || got[0].APIKey != "" {
		t.Errorf("keyless tts entry got a key: %+v", got)
	}

	if got := sttEntries(p); len(got) != 1 || got[0].Name != "whisper" {
		t.Errorf("stt entries = %+v, want deepgram dropped for its missing key", got)
	}
}

func TestEntries_SelfHostedChatCompletions(t *testing.T) {
	t.Parallel()

	p := config.ProvidersConfig{LLMFallbacks: []config.ProviderEntry{
		{Name: "openai-compatible", BaseURL: "http://localhost:8000/v1", Model: "qwen2.5"},
		{Name: "openai-compatible", Model: "gpt-4o"},
	}}
	got := llmEntries(p, settings.Settings{})
	if len(got) != 1 || got[0].BaseURL == "" {
		t.Errorf("entries = %+v, want only the self-hosted one", got)
	}
}

func TestVoicing_VoiceSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		backend  speechBackend
		settings settings.Settings
		wantID   string
		wantErr  bool
	}{
		{
			name:     "selected voice",
			backend:  speechBackend{backend: DefaultTTSBackend},
			settings: settings.Settings{SelectedVoices: map[string]string{"hi-IN": "sel"}, CustomVoices: []settings.Voice{{ID: "first"}}},
			wantID:   "sel",
		},
		{
			name:     "configured voice",
			backend:  speechBackend{backend: "coqui", defaultVoice: "p225"},
			settings: settings.Settings{CustomVoices: []settings.Voice{{ID: "first"}}},
			wantID:   "p225",
		},
		{
			name:     "first saved voice",
			backend:  speechBackend{backend: DefaultTTSBackend},
			settings: settings.Settings{CustomVoices: []settings.Voice{{ID: "first"}, {ID: "second"}}},
			wantID:   "first",
		},
		{
			name:     "nothing to pick",
			backend:  speechBackend{backend: "coqui"},
			settings: settings.Settings{CustomVoices: []settings.Voice{{ID: "first"}}},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, err := settings.NewService(context.Background(), &memStore{s: tt.settings})
			if err != nil {
				t.Fatal(err)
			}
			v := &voicing{settings: svc}
			b := tt.backend
			v.current.Store(&b)

			got, err := v.Voice("hi-IN")
			if tt.wantErr {
				if !errors.Is(err, studio.ErrConfiguration) {
					t.Errorf("err = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil || got.VoiceID != tt.wantID {
				t.Errorf("Voice = %+v, %v; want %q", got, err, tt.wantID)
			}
		})
	}
}

// ── reload ───────────────────────────────────────────────────────────────────

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	reg := newRecordingRegistry()
	level := new(slog.LevelVar)
	old := testConfig()
	a := newTestApp(t, old, reg, WithLevelVar(level))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Providers.LLM = config.ProviderEntry{Name: "ollama", Model: "llama3"}
	next.Providers.STT = config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081"}
	next.Studio.DefaultLanguage = "pt-BR"
	a.ApplyConfig(old, next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if e, ok := reg.last("ollama"); !ok || e.Model != "llama3" {
		t.Errorf("ollama entry = %+v, %v", e, ok)
	}
	if a.stt.current.Load() == nil {
		t.Error("speech recognition not built on reload")
	}
	if def := a.Manager().Catalogue().Default().Code; def != "pt-BR" {
		t.Errorf("default language = %q, want pt-BR", def)
	}
	if out := feedback(t, a, "pause before 'God'"); out.Source != interpret.SourceLLM {
		t.Errorf("source = %s, want llm after reload", out.Source)
	}
}

func TestApplyConfig_FailedRebuildKeepsProviders(t *testing.T) {
	t.Parallel()

	reg := newRecordingRegistry()
	reg.RegisterLLM("flaky", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("invalid base url")
	})
	old := testConfig()
	old.Providers.LLM = config.ProviderEntry{Name: "ollama"}
	a := newTestApp(t, old, reg)

	next := testConfig()
	next.Providers.LLM = config.ProviderEntry{Name: "flaky", APIKey: "k"}
	a.ApplyConfig(old, next)

	if out := feedback(t, a, "pause before 'God'"); out.Source != interpret.SourceLLM {
		t.Errorf("source = %s, want the previous language model", out.Source)
	}
}

func TestCatalogueFor(t *testing.T) {
	t.Parallel()

	cat, err := catalogueFor(config.StudioConfig{
		DefaultLanguage: "en-IN",
		Languages:       studio.DefaultLanguages(),
	})
	if err != nil {
		t.Fatal(err)
	}
	all := cat.All()
	if all[0].Code != "en-IN" || len(all) != 3 {
		t.Errorf("catalogue = %+v", all)
	}
	if all[0].SampleText != genesis {
		t.Errorf("sample text = %q", all[0].SampleText)
	}
}

// ── run loop ─────────────────────────────────────────────────────────────────

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), newRecordingRegistry())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln, nil) }()

	url := "http://" + ln.Addr().String()
	var resp *http.Response
	for range 50 {
		resp, err = http.Post(url+"/api/sessions", "application/json", bytes.NewReader([]byte(`{"language":"en-IN"}`)))
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server not reachable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("create session = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	} {
		if got := SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
