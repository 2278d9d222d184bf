package markup

import (
	"errors"
	"fmt"
)

// ErrUnknownTag is returned by [Verify] when markup contains a bracket token
// outside the closed vocabulary.
var ErrUnknownTag = errors.New("markup: unknown tag")

// InvariantError reports the first position at which the words of a markup
// string diverge from the sacred text.
type InvariantError struct {
	// Position is the zero-based word index of the divergence.
	Position int

	// Want is the sacred-text word at Position, or "" when the markup has
	// more words than the text.
	Want string

	// Got is the markup word at Position, or "" when the markup has fewer
	// words than the text.
	Got string
}

// Error implements error.
func (e *InvariantError) Error() string {
	switch {
	case e.Got == "":
		return fmt.Sprintf("markup: word %d missing, want %q", e.Position, e.Want)
	case e.Want == "":
		return fmt.Sprintf("markup: unexpected word %d %q", e.Position, e.Got)
	default:
		return fmt.Sprintf("markup: word %d altered: got %q, want %q", e.Position, e.Got, e.Want)
	}
}

// Verify checks that m is a valid markup of sacredText: every bracket token
// is a vocabulary tag and the tag-free word sequence of m equals the word
// sequence of sacredText exactly.
func Verify(sacredText, m string) error {
	for _, tok := range tagPattern.FindAllString(m, -1) {
		if _, ok := ParseTag(tok); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTag, tok)
		}
	}

	want := StripTags(sacredText)
	got := StripTags(m)
	for i := 0; i < max(len(want), len(got)); i++ {
		var w, g string
		if i < len(want) {
			w = want[i]
		}
		if i < len(got) {
			g = got[i]
		}
		if w != g {
			return &InvariantError{Position: i, Want: w, Got: g}
		}
	}
	return nil
}

// ExtractTags returns the vocabulary tags used in m in order of appearance.
// Unknown bracket tokens are skipped.
func ExtractTags(m string) []Tag {
	var out []Tag
	for _, tok := range tagPattern.FindAllString(m, -1) {
		if t, ok := ParseTag(tok); ok {
			out = append(out, t)
		}
	}
	return out
}
