package studio

import (
	"fmt"
	"slices"
)

// Language is one entry of the recording language catalogue.
type Language struct {
	// Code is the BCP-47 tag, e.g. "hi-IN". It also selects the speech
	// recognition language for spoken feedback.
	Code string `json:"code" yaml:"code"`

	// Name is the English display name.
	Name string `json:"name" yaml:"name"`

	// NativeName is the name in the language itself.
	NativeName string `json:"native_name" yaml:"native_name"`

	// SampleText is loaded as the sacred text when the language is chosen.
	SampleText string `json:"sample_text" yaml:"sample_text"`
}

// DefaultLanguages returns the built-in catalogue. The first entry is the
// default language.
func DefaultLanguages() []Language {
	return []Language{
		{
			Code:       "hi-IN",
			Name:       "Hindi",
			NativeName: "हिन्दी",
			SampleText: "आदि में परमेश्‍वर ने आकाश और पृथ्वी की सृष्टि की।",
		},
		{
			Code:       "en-IN",
			Name:       "Indian English",
			NativeName: "Indian English",
			SampleText: "In the beginning, God created the heavens and the earth.",
		},
		{
			Code:       "pt-BR",
			Name:       "Portuguese (Sertanejo)",
			NativeName: "Português Sertanejo",
			SampleText: "No princípio, Deus criou os céus e a terra.",
		},
	}
}

// Catalogue is an ordered, immutable set of languages.
type Catalogue struct {
	langs []Language
}

// NewCatalogue validates langs and returns a catalogue over a copy of them.
// An empty list selects [DefaultLanguages].
func NewCatalogue(langs []Language) (*Catalogue, error) {
	if len(langs) == 0 {
		langs = DefaultLanguages()
	}
	seen := make(map[string]bool, len(langs))
	for i, l := range langs {
		if l.Code == "" {
			return nil, fmt.Errorf("studio: language %d: code is required", i)
		}
		if seen[l.Code] {
			return nil, fmt.Errorf("studio: language %q listed twice", l.Code)
		}
		seen[l.Code] = true
	}
	return &Catalogue{langs: slices.Clone(langs)}, nil
}

// All returns the languages in order.
func (c *Catalogue) All() []Language { return slices.Clone(c.langs) }

// Default returns the first language.
func (c *Catalogue) Default() Language { return c.langs[0] }

// Lookup finds a language by code.
func (c *Catalogue) Lookup(code string) (Language, bool) {
	for _, l := range c.langs {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}
