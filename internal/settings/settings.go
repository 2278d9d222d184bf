// Package settings holds the user-editable studio settings: provider
// credentials, the speech model, the voice chosen per language and the
// custom voice list. Settings are stored as one JSON document under
// [StorageKey], either in a local file or in PostgreSQL.
package settings

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/MrWong99/cantor/pkg/provider/tts/elevenlabs"
)

// StorageKey is the key the settings document is stored under.
const StorageKey = "voicePerformanceStudioSettings"

// DefaultTTSModel is the speech model used until the user picks another.
const DefaultTTSModel = "eleven_multilingual_v2"

// Voice is one entry of the voice list offered per language.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Settings is the persisted settings document.
type Settings struct {
	// LLMAPIKey enables the language-model interpreter.
	LLMAPIKey string `json:"llm_api_key,omitempty"`

	// TTSAPIKey enables speech synthesis.
	TTSAPIKey string `json:"tts_api_key,omitempty"`

	// TTSModel is the synthesis model identifier.
	TTSModel string `json:"tts_model,omitempty"`

	// SelectedVoices maps a language code to the chosen voice ID.
	SelectedVoices map[string]string `json:"selected_voices,omitempty"`

	// CustomVoices is the voice list offered in every language.
	CustomVoices []Voice `json:"custom_voices,omitempty"`
}

// Default returns the settings of a fresh installation.
func Default() Settings {
	return Settings{
		TTSModel:     DefaultTTSModel,
		CustomVoices: DefaultVoices(),
	}
}

// DefaultVoices returns the premade voice list.
func DefaultVoices() []Voice {
	premade := elevenlabs.DefaultVoices()
	out := make([]Voice, len(premade))
	for i, v := range premade {
		out[i] = Voice{ID: v.ID, Name: v.Name}
	}
	return out
}

// Normalize trims every field and fills in the model and voice list when
// they are empty.
func (s *Settings) Normalize() {
	s.LLMAPIKey = strings.TrimSpace(s.LLMAPIKey)
	s.TTSAPIKey = strings.TrimSpace(s.TTSAPIKey)
	s.TTSModel = strings.TrimSpace(s.TTSModel)
	if s.TTSModel == "" {
		s.TTSModel = DefaultTTSModel
	}
	for lang, id := range s.SelectedVoices {
		if id = strings.TrimSpace(id); id == "" {
			delete(s.SelectedVoices, lang)
		} else {
			s.SelectedVoices[lang] = id
		}
	}
	s.CustomVoices = slices.DeleteFunc(s.CustomVoices, func(v Voice) bool {
		return strings.TrimSpace(v.ID) == ""
	})
	if len(s.CustomVoices) == 0 {
		s.CustomVoices = DefaultVoices()
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	s.SelectedVoices = maps.Clone(s.SelectedVoices)
	s.CustomVoices = slices.Clone(s.CustomVoices)
	return s
}

// VoiceFor returns the voice chosen for a language code, or "".
func (s Settings) VoiceFor(lang string) string {
	return s.SelectedVoices[lang]
}

// HasLLM reports whether a language-model credential is set.
func (s Settings) HasLLM() bool { return s.LLMAPIKey != "" }

// HasTTS reports whether a speech credential is set.
func (s Settings) HasTTS() bool { return s.TTSAPIKey != "" }

// Redacted returns a copy with the credentials masked down to their last
// four characters.
func (s Settings) Redacted() Settings {
	r := s.Clone()
	r.LLMAPIKey = mask(s.LLMAPIKey)
	r.TTSAPIKey = mask(s.TTSAPIKey)
	return r
}

// Merge returns update applied on top of s. A credential equal to the
// masked form of the current one keeps the current credential, so a
// redacted document can be edited and saved back.
func (s Settings) Merge(update Settings) Settings {
	out := update.Clone()
	if s.LLMAPIKey != "" && out.LLMAPIKey == mask(s.LLMAPIKey) {
		out.LLMAPIKey = s.LLMAPIKey
	}
	if s.TTSAPIKey != "" && out.TTSAPIKey == mask(s.TTSAPIKey) {
		out.TTSAPIKey = s.TTSAPIKey
	}
	out.Normalize()
	return out
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	r := []rune(key)
	if len(r) <= 4 {
		return strings.Repeat("•", len(r))
	}
	return strings.Repeat("•", 8) + string(r[len(r)-4:])
}

// ParseCustomVoices reads one voice per line in the form "Name | id". A
// line without a separator is used as both name and ID. Blank lines and
// lines with more than one separator are skipped.
func ParseCustomVoices(text string) []Voice {
	var out []Voice
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		switch len(parts) {
		case 1:
			out = append(out, Voice{ID: line, Name: line})
		case 2:
			name, id := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if id == "" {
				continue
			}
			out = append(out, Voice{ID: id, Name: name})
		}
	}
	return out
}

// FormatCustomVoices renders voices in the form read by
// [ParseCustomVoices].
func FormatCustomVoices(voices []Voice) string {
	lines := make([]string, len(voices))
	for i, v := range voices {
		lines[i] = v.Name + " | " + v.ID
	}
	return strings.Join(lines, "\n")
}

// Store persists the settings document.
type Store interface {
	// Load returns the stored settings, or [Default] when none were saved.
	Load(ctx context.Context) (Settings, error)

	// Save replaces the stored settings.
	Save(ctx context.Context, s Settings) error
}
