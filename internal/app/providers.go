package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/cantor/internal/config"
	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/internal/resilience"
	"github.com/MrWong99/cantor/internal/settings"
)

// Backends selected when only a studio credential is saved.
const (
	DefaultLLMBackend = "anthropic"
	DefaultTTSBackend = "elevenlabs"
)

// keyless lists the backends that run without a credential.
var keyless = map[string]bool{
	"ollama":    true,
	"llamacpp":  true,
	"llamafile": true,
	"coqui":     true,
	"whisper":   true,
}

// withCredential resolves the primary entry of a kind whose credential can
// come from the studio settings. The saved key takes precedence over the
// configured one; with no primary configured, fallbackName is used once a
// key is saved.
func withCredential(primary config.ProviderEntry, key, fallbackName string) config.ProviderEntry {
	if primary.IsZero() {
		if key == "" {
			return primary
		}
		primary = config.ProviderEntry{Name: fallbackName}
	}
	if key != "" && !keyless[primary.Name] {
		primary.APIKey = key
	}
	return primary
}

// needsKey reports whether e cannot run without a credential. A
// Chat Completions entry with a base URL points at a self-hosted server.
func needsKey(e config.ProviderEntry) bool {
	if keyless[e.Name] {
		return false
	}
	return !(e.Name == "openai-compatible" && e.BaseURL != "")
}

// usable drops entries that are not configured or lack a required
// credential.
func usable(entries ...config.ProviderEntry) []config.ProviderEntry {
	var out []config.ProviderEntry
	for _, e := range entries {
		if e.IsZero() {
			continue
		}
		if e.APIKey == "" && needsKey(e) {
			slog.Debug("provider skipped without credential", "name", e.Name)
			continue
		}
		out = append(out, e)
	}
	return out
}

func llmEntries(p config.ProvidersConfig, st settings.Settings) []config.ProviderEntry {
	primary := withCredential(p.LLM, st.LLMAPIKey, DefaultLLMBackend)
	return usable(append([]config.ProviderEntry{primary}, p.LLMFallbacks...)...)
}

func ttsEntries(p config.ProvidersConfig, st settings.Settings) []config.ProviderEntry {
	primary := withCredential(p.TTS, st.TTSAPIKey, DefaultTTSBackend)
	return usable(append([]config.ProviderEntry{primary}, p.TTSFallbacks...)...)
}

func sttEntries(p config.ProvidersConfig) []config.ProviderEntry {
	return usable(append([]config.ProviderEntry{p.STT}, p.STTFallbacks...)...)
}

// instance is one constructed backend.
type instance[T any] struct {
	entry    config.ProviderEntry
	provider T
}

// instantiate constructs every entry with create. Names without a
// registered factory are skipped; any other factory error aborts.
func instantiate[T any](kind string, entries []config.ProviderEntry, create func(config.ProviderEntry) (T, error)) ([]instance[T], error) {
	var out []instance[T]
	for _, e := range entries {
		p, err := create(e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not registered, skipping", "kind", kind, "name", e.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
		}
		slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model)
		out = append(out, instance[T]{entry: e, provider: p})
	}
	return out, nil
}

func names[T any](items []instance[T]) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.entry.Name
	}
	return out
}

// fallbackConfig returns the breaker template for provider groups. State
// changes are logged and counted.
func fallbackConfig(m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
