// Package markup implements the performance-markup engine: the closed tag
// vocabulary, the tokenizer and sentence splitter, the rule-based feedback
// interpreter, and the word-preservation verifier.
//
// A markup string interleaves the words of a sacred text, verbatim and in
// order, with bracketed performance tags such as "[reverent]" or "[pause]".
// Every function in this package is pure and safe for concurrent use.
package markup

import "strings"

// Tag is a performance tag drawn from the closed vocabulary.
type Tag string

const (
	TagReverent  Tag = "reverent"
	TagJoyful    Tag = "joyful"
	TagSorrowful Tag = "sorrowful"
	TagUrgent    Tag = "urgent"
	TagWhisper   Tag = "whisper"
	TagPause     Tag = "pause"
	TagSlow      Tag = "slow"
	TagFast      Tag = "fast"
	TagEmphasis  Tag = "emphasis"
	TagPeaceful  Tag = "peaceful"
	TagAwe       Tag = "awe"
	TagWarning   Tag = "warning"
	TagGentle    Tag = "gentle"
	TagStrong    Tag = "strong"
)

// DefaultTag is returned by [Classify] when no keyword matches.
const DefaultTag = TagEmphasis

// Token renders the tag as it appears inside markup, e.g. "[pause]".
func (t Tag) Token() string {
	return "[" + string(t) + "]"
}

// IsValid reports whether t belongs to the closed vocabulary.
func (t Tag) IsValid() bool {
	_, ok := vocabularyIndex[t]
	return ok
}

// vocabulary lists every tag in its canonical order.
var vocabulary = []Tag{
	TagReverent, TagJoyful, TagSorrowful, TagUrgent,
	TagWhisper, TagPause, TagSlow, TagFast, TagEmphasis,
	TagPeaceful, TagAwe, TagWarning, TagGentle, TagStrong,
}

var vocabularyIndex = func() map[Tag]int {
	m := make(map[Tag]int, len(vocabulary))
	for i, t := range vocabulary {
		m[t] = i
	}
	return m
}()

// Tags returns the closed vocabulary in canonical order. The returned slice
// is a copy and may be modified by the caller.
func Tags() []Tag {
	out := make([]Tag, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// ParseTag resolves a tag name, with or without surrounding brackets,
// case-insensitively.
func ParseTag(name string) (Tag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(strings.TrimPrefix(name, "["), "]")
	t := Tag(name)
	if !t.IsValid() {
		return "", false
	}
	return t, true
}

// keywordRule maps a tag to the feedback keywords that select it.
type keywordRule struct {
	tag      Tag
	keywords []string
}

// keywordTable is scanned top to bottom by [Classify]; the first rule with a
// hit wins. The order is part of the contract: "important" appears under both
// urgent and emphasis and must resolve to urgent.
var keywordTable = []keywordRule{
	{TagReverent, []string{"reverent", "reverence", "respectful", "solemn", "holy", "sacred"}},
	{TagJoyful, []string{"joyful", "happy", "excited", "celebration", "joy", "cheerful"}},
	{TagSorrowful, []string{"sorrowful", "sad", "grief", "lament", "mourning", "melancholy"}},
	{TagUrgent, []string{"urgent", "pressing", "hurry", "important", "critical"}},
	{TagWhisper, []string{"whisper", "soft", "quiet", "gentle voice", "softly"}},
	{TagPause, []string{"pause", "stop", "break", "wait", "silence"}},
	{TagSlow, []string{"slow", "slower", "carefully", "deliberate", "drawn out"}},
	{TagFast, []string{"fast", "faster", "quick", "rapid", "speed up"}},
	{TagEmphasis, []string{"emphasis", "stress", "highlight", "emphasize", "important"}},
	{TagPeaceful, []string{"peaceful", "calm", "serene", "tranquil", "restful"}},
	{TagAwe, []string{"awe", "wonder", "amazed", "marvel", "astonished"}},
	{TagWarning, []string{"warning", "warn", "caution", "ominous", "danger"}},
	{TagGentle, []string{"gentle", "tender", "kind", "soothing"}},
	{TagStrong, []string{"strong", "powerful", "bold", "forceful", "loud"}},
}

// Keywords returns a copy of the trigger keywords for t, or nil when t is
// not part of the vocabulary.
func Keywords(t Tag) []string {
	for _, r := range keywordTable {
		if r.tag == t {
			out := make([]string, len(r.keywords))
			copy(out, r.keywords)
			return out
		}
	}
	return nil
}

// Classify returns the tag whose keywords best describe feedback.
//
// Rules are scanned in keyword-table order. A rule hits when one of its
// keywords occurs in the lowercased feedback, or when the whole trimmed
// feedback occurs inside one of its keywords. The first hit wins; with no
// hit the result is [DefaultTag].
func Classify(feedback string) Tag {
	lower := strings.ToLower(feedback)
	trimmed := strings.TrimSpace(lower)
	for _, r := range keywordTable {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.tag
			}
			if trimmed != "" && strings.Contains(kw, trimmed) {
				return r.tag
			}
		}
	}
	return DefaultTag
}
