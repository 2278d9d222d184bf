// Package llmcorrect asks a language model which word of the sacred text a
// misheard feedback target was meant to be. It is consulted only after the
// phonetic matcher found nothing, and its answer is accepted only when it
// names a word that actually occurs in the text.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	llm "github.com/MrWong99/cantor/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 128
)

const systemPromptTemplate = `You help a recording director whose spoken feedback about a scripture reading was transcribed by speech recognition.

The feedback names one word of the passage, but speech recognition may have misheard it. Decide which word of the passage the director meant.

Rules:
- Answer with a word that appears in the passage word list below, spelled exactly as listed.
- If no passage word is a plausible match, answer with an empty word.
- Be conservative. Sound-alike words are plausible, unrelated words are not.

Passage words:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"word": "<passage word or empty>", "confidence": <0.0-1.0>}`

type llmResponse struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) { c.temperature = temp }
}

// Corrector is safe for concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a [Corrector] backed by provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{llm: provider, temperature: defaultTemperature}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Resolve asks the model which of words the heard target stands for. It
// returns the model's choice and confidence; an empty word means the model
// found no plausible match. An unparseable reply counts as no match.
// Transport failures and context cancellation are returned as errors.
func (c *Corrector) Resolve(ctx context.Context, feedback, heard string, words []string) (string, float64, error) {
	if len(words) == 0 || strings.TrimSpace(heard) == "" {
		return "", 0, nil
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(words),
		Temperature:  c.temperature,
		MaxTokens:    defaultMaxTokens,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Feedback: %q\nMisheard word: %q", feedback, heard),
		}},
	})
	if err != nil {
		return "", 0, fmt.Errorf("llm corrector: complete: %w", err)
	}

	var r llmResponse
	if err := json.Unmarshal([]byte(stripMarkdown(resp.Content)), &r); err != nil {
		return "", 0, nil //nolint:nilerr // an unreadable reply means no correction
	}
	return strings.TrimSpace(r.Word), r.Confidence, nil
}

func buildSystemPrompt(words []string) string {
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString("- ")
		sb.WriteString(w)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// stripMarkdown removes a surrounding code fence.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
