// Package interpret turns director feedback into performance markup.
//
// [LLM] asks a language model to place tags; the rule interpreter in
// package markup is the deterministic alternative. [Dispatcher] tries the
// model first and falls back to the rules on any failure, so callers always
// receive markup.
package interpret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/cantor/internal/markup"
	"github.com/MrWong99/cantor/pkg/provider/llm"
)

// ErrUpstream marks every failure of the language-model path: transport
// errors, empty answers and answers that break the markup invariants.
var ErrUpstream = errors.New("interpret: language model unavailable")

const (
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
)

// Request is one interpretation job.
type Request struct {
	// SacredText is the plain passage. Its words are never altered.
	SacredText string

	// Feedback is the director's utterance.
	Feedback string

	// CurrentMarkup is the markup the feedback refines. Empty means the
	// sacred text is the starting point.
	CurrentMarkup string
}

// Base returns the text the interpretation starts from.
func (r Request) Base() string {
	if r.CurrentMarkup != "" {
		return r.CurrentMarkup
	}
	return r.SacredText
}

// LLMOption configures an [LLM].
type LLMOption func(*LLM)

// WithVerify toggles the post-check of model output against the sacred text.
// Enabled by default.
func WithVerify(on bool) LLMOption {
	return func(l *LLM) { l.verify = on }
}

// WithTimeout bounds one model call. Zero disables the bound.
func WithTimeout(d time.Duration) LLMOption {
	return func(l *LLM) { l.timeout = d }
}

// WithMaxTokens overrides the completion budget.
func WithMaxTokens(n int) LLMOption {
	return func(l *LLM) {
		if n > 0 {
			l.maxTokens = n
		}
	}
}

// LLM interprets feedback with a language model. It is safe for concurrent
// use.
type LLM struct {
	provider  llm.Provider
	verify    bool
	timeout   time.Duration
	maxTokens int
}

// NewLLM returns an interpreter backed by provider.
func NewLLM(provider llm.Provider, opts ...LLMOption) *LLM {
	l := &LLM{
		provider:  provider,
		verify:    true,
		timeout:   defaultTimeout,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Interpret asks the model for new markup. Every error wraps [ErrUpstream].
func (l *LLM) Interpret(ctx context.Context, req Request) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	resp, err := l.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: userMessage(req)}},
		MaxTokens:    l.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: complete: %w", ErrUpstream, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty response", ErrUpstream)
	}

	out := markup.Normalize(stripMarkdown(resp.Content))
	if out == "" {
		return "", fmt.Errorf("%w: empty markup", ErrUpstream)
	}
	if l.verify {
		if err := markup.Verify(req.SacredText, out); err != nil {
			return "", fmt.Errorf("%w: rejected output: %w", ErrUpstream, err)
		}
	}
	return out, nil
}

// systemPrompt instructs the model. The tag list is rendered from the
// vocabulary so that the prompt and the verifier never disagree.
var systemPrompt = `You are a voice performance director for sacred text recordings.

Your job is to modify the performance markup of sacred text based on user feedback.

CRITICAL RULES:
1. NEVER change, add, or remove any words from the sacred text
2. Insert performance tags at SPECIFIC POSITIONS based on the feedback
3. Available tags: ` + tagList() + `
4. Tags should be placed BEFORE the word or phrase they affect, not all at the beginning
5. If feedback mentions a specific word or phrase, place the tag right before that word/phrase
6. If feedback says "beginning", place tag at the start
7. If feedback says "end" or "ending", place tag before the last sentence/phrase
8. If feedback says "throughout" or "whole", you may place one tag at the beginning
9. Return ONLY the marked-up text, no explanation

EXAMPLES:
- Sacred: "In the beginning, God created the heavens and the earth."
- Feedback: "make 'heavens' more reverent"
- Output: In the beginning, God created the [reverent] heavens and the earth.

- Sacred: "In the beginning, God created the heavens and the earth."
- Feedback: "add a pause after heavens"
- Output: In the beginning, God created the heavens [pause] and the earth.

- Sacred: "In the beginning, God created the heavens and the earth."
- Feedback: "whisper at the end"
- Output: In the beginning, God created the heavens and [whisper] the earth.

- Sacred: "In the beginning, God created the heavens and the earth."
- Feedback: "make the whole thing joyful"
- Output: [joyful] In the beginning, God created the heavens and the earth.`

func tagList() string {
	tags := markup.Tags()
	toks := make([]string, len(tags))
	for i, t := range tags {
		toks[i] = t.Token()
	}
	return strings.Join(toks, ", ")
}

func userMessage(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sacred text: %q\n", req.SacredText)
	if req.CurrentMarkup != "" {
		fmt.Fprintf(&sb, "Current markup: %q\n", req.CurrentMarkup)
	}
	fmt.Fprintf(&sb, "User feedback: %q\n\n", req.Feedback)
	sb.WriteString("Apply the feedback by placing tags at the appropriate positions. Return ONLY the marked-up text:")
	return sb.String()
}

// stripMarkdown removes a code fence some models wrap around their answer.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```"); ok {
		// Drop an info string such as ```text.
		if nl := strings.IndexByte(after, '\n'); nl >= 0 {
			after = after[nl+1:]
		}
		s = after
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
