package markup

import (
	"regexp"
	"strings"
	"unicode"
)

// tagPattern matches any bracketed token, known to the vocabulary or not.
var tagPattern = regexp.MustCompile(`\[[^\]]+\]`)

// sentenceEnders are the runes that close a sentence. The Devanagari danda
// is required for Hindi texts.
const sentenceEnders = ".!?।"

// IsTagToken reports whether a whitespace-delimited token is a bracket tag.
func IsTagToken(tok string) bool {
	return strings.HasPrefix(tok, "[")
}

// Normalize collapses every run of whitespace to a single space and trims
// the result.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// StripTags removes every bracketed token from text and returns the
// remaining words in order. Words keep their punctuation. Empty input yields
// an empty slice.
func StripTags(text string) []string {
	return strings.Fields(tagPattern.ReplaceAllString(text, " "))
}

// PlainText returns text with all tags removed and whitespace normalised.
func PlainText(text string) string {
	return strings.Join(StripTags(text), " ")
}

// SplitSentences splits text after every sentence-ending punctuation mark
// that is followed by whitespace. The punctuation stays attached to its
// sentence and the separating whitespace is dropped. Text without any such
// boundary is returned as a single sentence; blank input yields nil.
func SplitSentences(text string) []string {
	var (
		sentences []string
		start     int
		prevEnder bool
	)
	for i, r := range text {
		if unicode.IsSpace(r) {
			if prevEnder && i > start {
				sentences = append(sentences, text[start:i])
				start = -1
			}
			prevEnder = false
			continue
		}
		if start < 0 {
			start = i
		}
		prevEnder = strings.ContainsRune(sentenceEnders, r)
	}
	if start >= 0 && start < len(text) {
		sentences = append(sentences, text[start:])
	}
	if len(sentences) == 1 && strings.TrimSpace(sentences[0]) == "" {
		return nil
	}
	return sentences
}

// normalizeWord lowercases a word and drops the punctuation that the target
// matcher ignores.
func normalizeWord(w string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			return -1
		}
		return r
	}, strings.ToLower(w))
}
