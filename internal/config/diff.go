package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Only fields that
// can be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LLMChanged is true when the language-model backends or the
	// interpretation tuning changed; the dispatcher must be rebuilt.
	LLMChanged bool

	// TTSChanged is true when the speech synthesis backends changed.
	TTSChanged bool

	// STTChanged is true when the speech recognition backends changed.
	STTChanged bool

	// LanguagesChanged is true when the catalogue or the default language
	// changed. Open sessions keep their language.
	LanguagesChanged bool
}

// Changed reports whether anything tracked differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LLMChanged || d.TTSChanged || d.STTChanged || d.LanguagesChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.LLMChanged = !entriesEqual(old.Providers.LLM, old.Providers.LLMFallbacks, new.Providers.LLM, new.Providers.LLMFallbacks) ||
		old.Studio.VerifyOutput() != new.Studio.VerifyOutput() ||
		old.Studio.LLMTimeout != new.Studio.LLMTimeout
	d.TTSChanged = !entriesEqual(old.Providers.TTS, old.Providers.TTSFallbacks, new.Providers.TTS, new.Providers.TTSFallbacks)
	d.STTChanged = !entriesEqual(old.Providers.STT, old.Providers.STTFallbacks, new.Providers.STT, new.Providers.STTFallbacks)

	d.LanguagesChanged = old.Studio.DefaultLanguage != new.Studio.DefaultLanguage ||
		!slices.Equal(old.Studio.Languages, new.Studio.Languages)

	return d
}

// entriesEqual compares two primary+fallback chains. Options maps hold
// arbitrary YAML values, hence the deep comparison.
func entriesEqual(aPrimary ProviderEntry, aFallbacks []ProviderEntry, bPrimary ProviderEntry, bFallbacks []ProviderEntry) bool {
	return reflect.DeepEqual(append([]ProviderEntry{aPrimary}, aFallbacks...), append([]ProviderEntry{bPrimary}, bFallbacks...))
}
