// Package phonetic matches a misheard word to the closest word of a known
// vocabulary, typically the words of the sacred text being recorded.
//
// Candidates whose Double Metaphone codes overlap with the heard word are
// ranked by Jaro-Winkler similarity and accepted above the phonetic
// threshold. When no code overlaps, for instance for scripts Double
// Metaphone does not encode, a stricter fuzzy threshold applies to plain
// Jaro-Winkler similarity.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Fold lowercases w and trims everything but letters, marks and digits from
// both ends.
func Fold(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	}))
}

type entry struct {
	word  string
	codes []string
}

// Vocabulary is a deduplicated, pre-encoded word list. It is immutable and
// safe for concurrent use.
type Vocabulary struct {
	entries []entry
	index   map[string]struct{}
}

// NewVocabulary folds words with [Fold], drops empty and duplicate ones and
// computes their phonetic codes once.
func NewVocabulary(words []string) *Vocabulary {
	v := &Vocabulary{index: make(map[string]struct{}, len(words))}
	for _, w := range words {
		f := Fold(w)
		if f == "" {
			continue
		}
		if _, dup := v.index[f]; dup {
			continue
		}
		v.index[f] = struct{}{}
		v.entries = append(v.entries, entry{word: f, codes: codes(f)})
	}
	return v
}

// Len returns the number of distinct words.
func (v *Vocabulary) Len() int { return len(v.entries) }

// Contains reports whether the folded form of w is in the vocabulary.
func (v *Vocabulary) Contains(w string) bool {
	_, ok := v.index[Fold(w)]
	return ok
}

// Words returns the folded words in first-seen order.
func (v *Vocabulary) Words() []string {
	out := make([]string, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.word
	}
	return out
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a candidate
// that shares a phonetic code with the heard word. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a candidate
// without phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] with the default thresholds.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the vocabulary word closest to heard. A word already in the
// vocabulary matches itself with confidence 1. When nothing is close enough
// it returns heard unchanged, 0 and false.
func (m *Matcher) Match(heard string, v *Vocabulary) (word string, confidence float64, matched bool) {
	f := Fold(heard)
	if f == "" || v == nil || v.Len() == 0 {
		return heard, 0, false
	}
	if v.Contains(f) {
		return f, 1, true
	}

	heardCodes := codes(f)
	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, e := range v.entries {
		score := matchr.JaroWinkler(f, e.word, false)
		if overlap(heardCodes, e.codes) {
			if score < m.phoneticThreshold {
				continue
			}
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = e.word, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = e.word, score
		}
	}
	if best == "" {
		return heard, 0, false
	}
	return best, bestScore, true
}

// codes returns the non-empty Double Metaphone codes of w.
func codes(w string) []string {
	p, s := matchr.DoubleMetaphone(w)
	var out []string
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

func overlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
