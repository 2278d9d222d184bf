// Package app wires the studio subsystems into a running server.
//
// [New] builds the settings store, the provider groups, the session manager
// and the HTTP surface from a [config.Config]. [App.Run] serves HTTP and
// runs the background loops until the context ends, and [App.Shutdown]
// closes sessions and stores in order.
//
// Collaborators that depend on credentials or on the config file are
// rebuilt in place: [App.ApplyConfig] handles config reloads and a settings
// listener handles saved credentials.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cantor/internal/api"
	"github.com/MrWong99/cantor/internal/config"
	"github.com/MrWong99/cantor/internal/health"
	"github.com/MrWong99/cantor/internal/interpret"
	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/internal/resilience"
	"github.com/MrWong99/cantor/internal/settings"
	"github.com/MrWong99/cantor/internal/studio"
	"github.com/MrWong99/cantor/internal/transcript"
	"github.com/MrWong99/cantor/internal/transcript/llmcorrect"
)

// App owns the subsystem lifetimes.
type App struct {
	reg            *config.Registry
	metrics        *observe.Metrics
	level          *slog.LevelVar
	metricsHandler http.Handler

	store    settings.Store
	settings *settings.Service
	manager  *studio.Manager
	api      *api.Server
	health   *health.Handler

	interp interpreterSlot
	voice  voicing
	stt    transcriberSlot

	mu  sync.RWMutex
	cfg *config.Config

	// rebuildMu serialises provider rebuilds.
	rebuildMu sync.Mutex

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSettingsStore injects a settings store instead of opening the one
// named in the config.
func WithSettingsStore(s settings.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads adjust the log level.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// New creates an App from cfg. Provider names are resolved through reg.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{reg: reg, cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(SlogLevel(cfg.Server.LogLevel))
	}

	// ── 1. Settings ──────────────────────────────────────────────────────
	if a.store == nil {
		store, closer, err := openSettingsStore(ctx, cfg.Settings)
		if err != nil {
			return nil, fmt.Errorf("app: open settings: %w", err)
		}
		a.store = store
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	svc, err := settings.NewService(ctx, a.store)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: load settings: %w", err)
	}
	a.settings = svc
	a.voice.settings = svc

	// ── 2. Providers ─────────────────────────────────────────────────────
	if err := a.rebuildProviders(true, true, true); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: build providers: %w", err)
	}

	// ── 3. Sessions ──────────────────────────────────────────────────────
	cat, err := catalogueFor(cfg.Studio)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: language catalogue: %w", err)
	}
	a.manager, err = studio.NewManager(cat, studio.Config{
		Interpreter:      &a.interp,
		Voicing:          &a.voice,
		Metrics:          a.metrics,
		HistoryLimit:     cfg.Studio.HistoryLimit,
		VersionLimit:     cfg.Studio.VersionLimit,
		SynthesisTimeout: cfg.Studio.SynthesisTimeout,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: session manager: %w", err)
	}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.api, err = api.New(a.manager, a.settings,
		api.WithTranscriber(&a.stt),
		api.WithVoiceLister(&a.voice),
		api.WithMetrics(a.metrics),
	)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: api: %w", err)
	}
	a.health = health.New(a.checkers()...)

	a.settings.OnChange(a.onSettingsChange)
	return a, nil
}

// Manager returns the session manager.
func (a *App) Manager() *studio.Manager { return a.manager }

// Settings returns the settings service.
func (a *App) Settings() *settings.Service { return a.settings }

// Handler returns every HTTP route behind the tracing middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.api.Register(mux)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// Run serves HTTP, reaps idle sessions and, when watcher is non-nil, polls
// the config file until ctx is cancelled. It returns nil after a clean
// stop.
func (a *App) Run(ctx context.Context, watcher *config.Watcher) error {
	cfg := a.config()
	ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln, watcher)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener, watcher *config.Watcher) error {
	cfg := a.config()
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	if idle := cfg.Studio.SessionIdleTimeout; idle > 0 {
		g.Go(func() error {
			return a.manager.RunReaper(gctx, reaperInterval(idle), idle)
		})
	}
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	slog.Info("studio listening", "addr", ln.Addr().String(), "tls", cfg.Server.TLS != nil)
	return g.Wait()
}

// Shutdown closes every session and then the stores. Only the first call
// has any effect.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.manager != nil {
			err = a.manager.CloseAll(ctx)
		}
		err = errors.Join(err, a.closeAll())
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ApplyConfig applies a reloaded config. It is the [config.Watcher]
// callback. Listener address, TLS and the settings backend need a restart.
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()

	if d.LogLevelChanged {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.LLMChanged || d.TTSChanged || d.STTChanged {
		// The spoken-feedback corrector uses the language model as well.
		if err := a.rebuildProviders(d.LLMChanged, d.TTSChanged, d.STTChanged || d.LLMChanged); err != nil {
			slog.Error("config reload: keeping previous providers", "err", err)
		}
	}
	if d.LanguagesChanged {
		cat, err := catalogueFor(next.Studio)
		if err != nil {
			slog.Error("config reload: keeping previous languages", "err", err)
		} else {
			a.manager.SetCatalogue(cat)
			slog.Info("language catalogue reloaded", "languages", len(cat.All()))
		}
	}
	if old.Server.ListenAddr != next.Server.ListenAddr || old.Settings != next.Settings {
		slog.Warn("config reload: listen address and settings backend changes apply after restart")
	}
}

func (a *App) onSettingsChange(settings.Settings) {
	if err := a.rebuildProviders(true, true, true); err != nil {
		slog.Error("settings change: keeping previous providers", "err", err)
	}
}

func (a *App) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// rebuildProviders reconstructs the selected provider groups from the
// current config and settings. A kind that fails to build keeps its
// previous providers.
func (a *App) rebuildProviders(llmKind, ttsKind, sttKind bool) error {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	cfg := a.config()
	st := a.settings.Get()
	if llmKind {
		if err := a.buildInterpreter(cfg, st); err != nil {
			return err
		}
	}
	if ttsKind {
		if err := a.buildVoicing(cfg, st); err != nil {
			return err
		}
	}
	if sttKind {
		if err := a.buildRecognition(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) buildInterpreter(cfg *config.Config, st settings.Settings) error {
	items, err := instantiate("llm", llmEntries(cfg.Providers, st), a.reg.CreateLLM)
	if err != nil {
		return err
	}
	opts := []interpret.DispatcherOption{interpret.WithMetrics(a.metrics)}
	var group *resilience.LLMFallback
	if len(items) > 0 {
		group = resilience.NewLLMFallback(items[0].provider, items[0].entry.Name, fallbackConfig(a.metrics))
		for _, it := range items[1:] {
			group.AddFallback(it.entry.Name, it.provider)
		}
		llmOpts := []interpret.LLMOption{interpret.WithVerify(cfg.Studio.VerifyOutput())}
		if cfg.Studio.LLMTimeout > 0 {
			llmOpts = append(llmOpts, interpret.WithTimeout(cfg.Studio.LLMTimeout))
		}
		opts = append(opts, interpret.WithModel(interpret.NewLLM(group, llmOpts...)))
	}
	a.interp.current.Store(interpret.NewDispatcher(opts...))
	a.interp.group.Store(group)
	slog.Info("interpreter configured", "language_models", names(items))
	return nil
}

func (a *App) buildVoicing(cfg *config.Config, st settings.Settings) error {
	items, err := instantiate("tts", ttsEntries(cfg.Providers, st), a.reg.CreateTTS)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.voice.current.Store(nil)
		slog.Info("speech synthesis disabled")
		return nil
	}
	group := resilience.NewTTSFallback(items[0].provider, items[0].entry.Name, fallbackConfig(a.metrics))
	for _, it := range items[1:] {
		group.AddFallback(it.entry.Name, it.provider)
	}
	primary := items[0].entry
	a.voice.current.Store(&speechBackend{
		group:        group,
		backend:      primary.Name,
		model:        primary.Model,
		defaultVoice: optString(primary.Options, "voice"),
	})
	slog.Info("speech synthesis configured", "backends", names(items))
	return nil
}

func (a *App) buildRecognition(cfg *config.Config) error {
	items, err := instantiate("stt", sttEntries(cfg.Providers), a.reg.CreateSTT)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.stt.current.Store(nil)
		return nil
	}
	group := resilience.NewSTTFallback(items[0].provider, items[0].entry.Name, fallbackConfig(a.metrics))
	for _, it := range items[1:] {
		group.AddFallback(it.entry.Name, it.provider)
	}

	var corrOpts []transcript.CorrectorOption
	if lm := a.interp.group.Load(); lm != nil {
		corrOpts = append(corrOpts, transcript.WithLLMCorrector(llmcorrect.New(lm)))
	}
	a.stt.current.Store(&recognition{
		group: group,
		pipeline: transcript.NewPipeline(group,
			transcript.WithCorrector(transcript.NewCorrector(corrOpts...)),
			transcript.WithMetrics(a.metrics),
			transcript.WithBackendName(items[0].entry.Name),
		),
	})
	slog.Info("speech recognition configured", "backends", names(items), "llm_correction", len(corrOpts) > 0)
	return nil
}

// checkers returns the readiness probes. Only the settings store is
// required; the studio runs on rules alone without any backend.
func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "settings",
			Check: func(ctx context.Context) error {
				_, err := a.store.Load(ctx)
				return err
			},
		},
		health.GroupCheck("llm", true, func() health.Group {
			if g := a.interp.group.Load(); g != nil {
				return g
			}
			return nil
		}),
		health.GroupCheck("tts", true, func() health.Group {
			if b := a.voice.current.Load(); b != nil {
				return b.group
			}
			return nil
		}),
		health.GroupCheck("stt", true, func() health.Group {
			if r := a.stt.current.Load(); r != nil {
				return r.group
			}
			return nil
		}),
	}
}

// catalogueFor builds the language catalogue with the configured default
// language first.
func catalogueFor(st config.StudioConfig) (*studio.Catalogue, error) {
	langs := slices.Clone(st.Languages)
	if st.DefaultLanguage != "" {
		if i := slices.IndexFunc(langs, func(l studio.Language) bool { return l.Code == st.DefaultLanguage }); i > 0 {
			def := langs[i]
			langs = slices.Delete(langs, i, i+1)
			langs = slices.Insert(langs, 0, def)
		}
	}
	return studio.NewCatalogue(langs)
}

// reaperInterval checks for idle sessions a few times per idle period.
func reaperInterval(idle time.Duration) time.Duration {
	return min(max(idle/4, time.Second), 5*time.Minute)
}

// SlogLevel maps a config log level to its slog level.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
