package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"anthropic", "openai", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"tts": {"elevenlabs", "coqui"},
	"stt": {"whisper", "deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	// Providers
	errs = append(errs, validateProviders("llm", cfg.Providers.LLM, cfg.Providers.LLMFallbacks)...)
	errs = append(errs, validateProviders("tts", cfg.Providers.TTS, cfg.Providers.TTSFallbacks)...)
	errs = append(errs, validateProviders("stt", cfg.Providers.STT, cfg.Providers.STTFallbacks)...)
	if cfg.Providers.LLM.IsZero() {
		slog.Warn("no LLM provider configured; feedback will be interpreted by the rules only")
	}
	if cfg.Providers.STT.IsZero() {
		slog.Warn("no STT provider configured; spoken feedback is unavailable")
	}

	// Studio
	st := cfg.Studio
	if st.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("studio.history_limit %d must not be negative", st.HistoryLimit))
	}
	if st.VersionLimit < 0 {
		errs = append(errs, fmt.Errorf("studio.version_limit %d must not be negative", st.VersionLimit))
	}
	if st.LLMTimeout < 0 || st.SynthesisTimeout < 0 {
		errs = append(errs, errors.New("studio timeouts must not be negative"))
	}
	codes := make(map[string]int, len(st.Languages))
	for i, l := range st.Languages {
		prefix := fmt.Sprintf("studio.languages[%d]", i)
		if l.Code == "" {
			errs = append(errs, fmt.Errorf("%s.code is required", prefix))
			continue
		}
		if prev, ok := codes[l.Code]; ok {
			errs = append(errs, fmt.Errorf("%s.code %q is a duplicate of studio.languages[%d]", prefix, l.Code, prev))
		}
		codes[l.Code] = i
		if l.SampleText == "" {
			slog.Warn("language has no sample text; sessions in it start empty", "language", l.Code)
		}
	}
	if st.DefaultLanguage != "" {
		if _, ok := codes[st.DefaultLanguage]; !ok && len(st.Languages) > 0 {
			errs = append(errs, fmt.Errorf("studio.default_language %q is not in studio.languages", st.DefaultLanguage))
		}
	}

	// Settings
	switch s := cfg.Settings; {
	case s.Backend != "" && !s.Backend.IsValid():
		errs = append(errs, fmt.Errorf("settings.backend %q is invalid; valid values: file, postgres", s.Backend))
	case s.Backend == SettingsPostgres && s.PostgresDSN == "":
		errs = append(errs, errors.New("settings.postgres_dsn is required when backend is postgres"))
	}

	return errors.Join(errs...)
}

func validateProviders(kind string, primary ProviderEntry, fallbacks []ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, primary.Name)
	if primary.IsZero() && len(fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("providers.%s_fallbacks requires providers.%s", kind, kind))
	}
	for i, fb := range fallbacks {
		if fb.IsZero() {
			errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, possibly a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
