package markup

import (
	"regexp"
	"strings"
)

// Placement describes where the rule interpreter puts a tag.
type Placement int

const (
	// PlaceBeforeWord inserts the tag immediately before a resolved target word.
	PlaceBeforeWord Placement = iota

	// PlaceEnd prepends the tag to the final sentence, or three words from
	// the end of a single-sentence text.
	PlaceEnd

	// PlaceBeginning prepends the tag to the whole markup.
	PlaceBeginning

	// PlaceThroughout prepends the tag to the whole markup; it reads as
	// "for the entire passage".
	PlaceThroughout

	// PlaceDefault is used when no positional signal was recognised. It
	// behaves like PlaceBeginning.
	PlaceDefault
)

// String returns the placement name used in logs and API responses.
func (p Placement) String() string {
	switch p {
	case PlaceBeforeWord:
		return "before_word"
	case PlaceEnd:
		return "end"
	case PlaceBeginning:
		return "beginning"
	case PlaceThroughout:
		return "throughout"
	case PlaceDefault:
		return "default"
	default:
		return "unknown"
	}
}

var (
	quotedPattern = regexp.MustCompile(`['"]([^'"]+)['"]`)

	// prepositionPattern captures the word after at/before/near/around,
	// skipping a single leading article so that "at the end" yields "end".
	prepositionPattern = regexp.MustCompile(`\b(?:at|before|near|around)\s+(?:(?:the|an|a)\s+)?['"]?([\p{L}\p{M}\p{N}_]+)['"]?`)
)

var (
	endSignals        = []string{"end", "ending", "last"}
	beginningSignals  = []string{"beginning", "start", "first"}
	throughoutSignals = []string{"throughout", "whole", "entire", "all"}
)

// PositionKeywords returns every word that the interpreter reads as a
// positional signal rather than as a target.
func PositionKeywords() []string {
	out := make([]string, 0, len(endSignals)+len(beginningSignals)+len(throughoutSignals))
	out = append(out, endSignals...)
	out = append(out, beginningSignals...)
	return append(out, throughoutSignals...)
}

// Plan is the decision the rule interpreter takes for one feedback utterance.
type Plan struct {
	// Tag is the classified performance tag.
	Tag Tag

	// Placement selects the insertion strategy.
	Placement Placement

	// Target is the quoted or prepositional target word, lowercased. It is
	// set even when the word was not found in the text.
	Target string

	// WordIndex is the zero-based index of the target in the tag-free word
	// sequence of the sacred text, or -1.
	WordIndex int
}

// ResolveTarget extracts the target word from feedback. A quoted substring
// takes precedence over the preposition grammar. The result is lowercased.
func ResolveTarget(feedback string) (string, bool) {
	if m := quotedPattern.FindStringSubmatch(feedback); m != nil {
		if t := strings.ToLower(strings.TrimSpace(m[1])); t != "" {
			return t, true
		}
	}
	if m := prepositionPattern.FindStringSubmatch(strings.ToLower(feedback)); m != nil {
		return m[1], true
	}
	return "", false
}

// FindWord returns the index of the first word whose lowercased,
// punctuation-stripped form contains target or is contained in it, or -1.
// Words that normalise to the empty string never match.
func FindWord(words []string, target string) int {
	if target == "" {
		return -1
	}
	for i, w := range words {
		n := normalizeWord(w)
		if n == "" {
			continue
		}
		if strings.Contains(n, target) || strings.Contains(target, n) {
			return i
		}
	}
	return -1
}

// PlanFeedback classifies feedback and decides where its tag goes relative
// to the words of sacredText.
func PlanFeedback(sacredText, feedback string) Plan {
	p := Plan{Tag: Classify(feedback), WordIndex: -1}
	if target, ok := ResolveTarget(feedback); ok {
		p.Target = target
		p.WordIndex = FindWord(StripTags(sacredText), target)
	}

	lower := strings.ToLower(feedback)
	switch {
	case p.WordIndex >= 0:
		p.Placement = PlaceBeforeWord
	case containsAny(lower, endSignals):
		p.Placement = PlaceEnd
	case containsAny(lower, beginningSignals):
		p.Placement = PlaceBeginning
	case containsAny(lower, throughoutSignals):
		p.Placement = PlaceThroughout
	default:
		p.Placement = PlaceDefault
	}
	return p
}

// Apply inserts the plan's tag into base and returns the normalised result.
// Words already in base are never changed, dropped or reordered.
func Apply(base string, p Plan) string {
	tok := p.Tag.Token()
	var out string
	switch p.Placement {
	case PlaceBeforeWord:
		out = insertBeforeWord(base, p.WordIndex, tok)
	case PlaceEnd:
		out = insertNearEnd(base, tok)
	default:
		out = prependOnce(base, tok)
	}
	return Normalize(out)
}

// InterpretWithRules maps feedback onto a new markup string. The current
// markup is the working base when non-empty, otherwise the sacred text.
// It is total and deterministic.
func InterpretWithRules(sacredText, feedback, currentMarkup string) string {
	base := currentMarkup
	if base == "" {
		base = sacredText
	}
	return Apply(base, PlanFeedback(sacredText, feedback))
}

// insertBeforeWord places tok before the word with the given index, counting
// only non-tag tokens so that existing markup does not shift the count.
func insertBeforeWord(base string, wordIndex int, tok string) string {
	tokens := strings.Fields(base)
	insertAt := 0
	count := 0
	for i, t := range tokens {
		if IsTagToken(t) {
			continue
		}
		if count == wordIndex {
			insertAt = i
			break
		}
		count++
	}
	return strings.Join(insertToken(tokens, insertAt, tok), " ")
}

// insertNearEnd prepends tok to the last sentence, or, for a single
// sentence, inserts it three words before the end.
func insertNearEnd(base, tok string) string {
	sentences := SplitSentences(base)
	if len(sentences) > 1 {
		last := len(sentences) - 1
		sentences[last] = tok + " " + sentences[last]
		return strings.Join(sentences, " ")
	}
	tokens := strings.Fields(base)
	return strings.Join(insertToken(tokens, max(0, len(tokens)-3), tok), " ")
}

// prependOnce puts tok at the front unless base already starts with it.
func prependOnce(base, tok string) string {
	trimmed := strings.TrimSpace(base)
	if strings.HasPrefix(trimmed, tok) {
		return trimmed
	}
	return tok + " " + trimmed
}

func insertToken(tokens []string, at int, tok string) []string {
	out := make([]string, 0, len(tokens)+1)
	out = append(out, tokens[:at]...)
	out = append(out, tok)
	return append(out, tokens[at:]...)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
