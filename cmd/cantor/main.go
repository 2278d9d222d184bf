// Command cantor serves the recording studio: typed or spoken feedback on a
// read-aloud passage becomes marked-up text and, with a speech backend
// configured, a new audio take.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/cantor/internal/app"
	"github.com/MrWong99/cantor/internal/config"
	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/pkg/provider/llm"
	"github.com/MrWong99/cantor/pkg/provider/llm/anyllm"
	"github.com/MrWong99/cantor/pkg/provider/llm/openai"
	"github.com/MrWong99/cantor/pkg/provider/stt"
	"github.com/MrWong99/cantor/pkg/provider/stt/deepgram"
	"github.com/MrWong99/cantor/pkg/provider/stt/whisper"
	"github.com/MrWong99/cantor/pkg/provider/tts"
	"github.com/MrWong99/cantor/pkg/provider/tts/coqui"
	"github.com/MrWong99/cantor/pkg/provider/tts/elevenlabs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	pollInterval := flag.Duration("reload-interval", 5*time.Second, "how often the config file is checked for changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// The watcher callback runs only once Run starts polling, after the
	// application below is assigned.
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		application.ApplyConfig(old, next)
	}, config.WithInterval(*pollInterval))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cantor: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cantor: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("cantor starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	printStartupSummary(os.Stderr, cfg)

	application, err = app.New(ctx, cfg, reg,
		app.WithLevelVar(level),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(tel.MetricsHandler),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// SIGHUP reloads the config file without waiting for the next poll.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if changed, err := watcher.Reload(); err != nil {
					slog.Warn("reload on SIGHUP failed, keeping previous config", "err", err)
				} else if !changed {
					slog.Info("reload on SIGHUP: config unchanged")
				}
			}
		}
	}()

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx, watcher); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders lists the backends that ship with cantor, per kind.
var builtinProviders = map[string][]string{
	"llm": {"openai", "openai-compatible", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
	"tts": {"elevenlabs", "coqui"},
}

// registerBuiltinProviders wires every built-in factory into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The any-llm backends share the same pattern: optional APIKey and
	// optional BaseURL. Local servers take their address from BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini", "deepseek", "mistral", "groq",
		"llamacpp", "llamafile", "ollama",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// Any server speaking the Chat Completions API, through the official SDK.
	reg.RegisterLLM("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

// printStartupSummary writes the resolved backends as an aligned table to
// stderr. Backends whose key lives in the studio settings show as
// "(settings)" until a director saves one.
func printStartupSummary(w io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "cantor %s\n", version)
	for _, row := range []struct {
		kind      string
		entry     config.ProviderEntry
		fallbacks int
	}{
		{"llm", cfg.Providers.LLM, len(cfg.Providers.LLMFallbacks)},
		{"stt", cfg.Providers.STT, len(cfg.Providers.STTFallbacks)},
		{"tts", cfg.Providers.TTS, len(cfg.Providers.TTSFallbacks)},
	} {
		backend := cmp.Or(row.entry.Name, "(settings)")
		fmt.Fprintf(tw, "  %s\t%s\t%s\t+%d fallback(s)\n", row.kind, backend, cmp.Or(row.entry.Model, "-"), row.fallbacks)
	}
	fmt.Fprintf(tw, "  languages\t%d\t\t\n", len(cfg.Studio.Languages))
	fmt.Fprintf(tw, "  settings\t%s\t\t\n", cfg.Settings.Backend)
	fmt.Fprintf(tw, "  listen\t%s\t\t\n", cfg.Server.ListenAddr)
	_ = tw.Flush()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration string such as "30s" from a provider
// Options map. Missing or malformed values yield zero.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
