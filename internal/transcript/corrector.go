package transcript

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/cantor/internal/markup"
	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/internal/transcript/llmcorrect"
	"github.com/MrWong99/cantor/internal/transcript/phonetic"
	"github.com/MrWong99/cantor/pkg/provider/stt"
)

const defaultLLMConfidenceThreshold = 0.5

// CorrectorOption configures a [Corrector].
type CorrectorOption func(*Corrector)

// WithPhoneticMatcher replaces the default phonetic matcher. Nil disables
// the phonetic stage.
func WithPhoneticMatcher(m *phonetic.Matcher) CorrectorOption {
	return func(c *Corrector) { c.phonetic = m }
}

// WithLLMCorrector enables the language-model stage, consulted when the
// phonetic stage finds no match.
func WithLLMCorrector(l *llmcorrect.Corrector) CorrectorOption {
	return func(c *Corrector) { c.llm = l }
}

// WithLLMOnLowConfidence sets the recognition confidence below which a
// target word is handed to the language-model stage. A transcript without
// per-word detail always qualifies. Default: 0.5.
func WithLLMOnLowConfidence(threshold float64) CorrectorOption {
	return func(c *Corrector) { c.llmThreshold = threshold }
}

// Corrector repairs the target word of a spoken feedback transcript so the
// rule interpreter can find it in the sacred text. Only the target word is
// ever replaced, and position keywords such as "end" or "beginning" are
// never treated as misheard words.
//
// Corrector is safe for concurrent use.
type Corrector struct {
	phonetic     *phonetic.Matcher
	llm          *llmcorrect.Corrector
	llmThreshold float64
	protected    map[string]struct{}
}

// NewCorrector returns a [Corrector] with the phonetic stage enabled and the
// language-model stage disabled.
func NewCorrector(opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		phonetic:     phonetic.New(),
		llmThreshold: defaultLLMConfidenceThreshold,
		protected:    make(map[string]struct{}),
	}
	for _, kw := range markup.PositionKeywords() {
		c.protected[kw] = struct{}{}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct resolves the feedback target in t and, when it does not occur in
// sacredText, replaces it with the closest word that does.
//
// A failure of the language-model stage is logged and leaves the target
// unchanged; Correct only returns an error when ctx is done.
func (c *Corrector) Correct(ctx context.Context, t stt.Transcript, sacredText string) (*CorrectedTranscript, error) {
	text := markup.Normalize(t.Text)
	result := &CorrectedTranscript{
		Original:    t,
		Corrected:   text,
		Corrections: []Correction{},
	}

	target, ok := markup.ResolveTarget(text)
	if !ok {
		return result, nil
	}
	result.Target = target
	if strings.ContainsFunc(target, unicode.IsSpace) || c.isProtected(target) {
		return result, nil
	}

	words := markup.StripTags(sacredText)
	if markup.FindWord(words, target) >= 0 {
		return result, nil
	}
	vocab := phonetic.NewVocabulary(words)

	if c.phonetic != nil {
		if word, conf, ok := c.phonetic.Match(target, vocab); ok && !c.isProtected(word) {
			c.apply(result, target, word, conf, "phonetic")
			return result, nil
		}
	}

	if c.llm == nil || !c.lowConfidence(t.Words, target) {
		return result, nil
	}
	word, conf, err := c.llm.Resolve(ctx, text, target, vocab.Words())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		observe.Logger(ctx).Warn("llm target correction failed", "target", target, "error", err)
		return result, nil
	}
	if word = phonetic.Fold(word); word != "" && vocab.Contains(word) && !c.isProtected(word) {
		c.apply(result, target, word, conf, "llm")
	}
	return result, nil
}

func (c *Corrector) isProtected(w string) bool {
	_, ok := c.protected[phonetic.Fold(w)]
	return ok
}

// lowConfidence reports whether the recogniser was unsure about target, or
// gave no per-word detail to tell.
func (c *Corrector) lowConfidence(details []stt.WordDetail, target string) bool {
	if len(details) == 0 {
		return true
	}
	for _, wd := range details {
		if phonetic.Fold(wd.Word) == target {
			return wd.Confidence < c.llmThreshold
		}
	}
	return true
}

func (c *Corrector) apply(result *CorrectedTranscript, target, word string, conf float64, method string) {
	replaced, ok := replaceWord(result.Corrected, target, word)
	if !ok {
		return
	}
	result.Corrected = replaced
	result.Target = word
	result.Corrections = append(result.Corrections, Correction{
		Original:   target,
		Corrected:  word,
		Confidence: conf,
		Method:     method,
	})
}

// replaceWord swaps the first token of text whose folded form equals target
// for word, keeping the token's surrounding punctuation and quotes.
func replaceWord(text, target, word string) (string, bool) {
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if phonetic.Fold(tok) != target {
			continue
		}
		start := strings.IndexFunc(tok, isWordRune)
		end := strings.LastIndexFunc(tok, isWordRune)
		_, size := utf8.DecodeRuneInString(tok[end:])
		tokens[i] = tok[:start] + word + tok[end+size:]
		return strings.Join(tokens, " "), true
	}
	return text, false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r)
}
