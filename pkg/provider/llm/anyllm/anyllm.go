// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider],
// giving the interpreter one code path for the hosted model APIs and for
// local llama.cpp, llamafile and Ollama servers.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/cantor/pkg/provider/llm"
)

// ErrTruncated is returned when the backend stopped at the token limit.
var ErrTruncated = errors.New("anyllm: completion truncated at the token limit")

// Backends lists the backend names accepted by [New].
var Backends = []string{"anthropic", "openai", "gemini", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile"}

// defaultModels is used when a hosted backend is configured without a
// model. Local servers serve whatever they loaded and have no default.
var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-20250514",
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-2.0-flash",
	"deepseek":  "deepseek-chat",
	"mistral":   "mistral-small-latest",
	"groq":      "llama-3.3-70b-versatile",
}

// DefaultModel returns the model [New] picks for backend when none is
// given, or "" when the backend needs an explicit model.
func DefaultModel(backend string) string { return defaultModels[strings.ToLower(backend)] }

// Provider is an [llm.Provider] over one any-llm-go backend.
type Provider struct {
	client  anyllmlib.Provider
	backend string
	model   string
}

// New connects to backend. opts are any-llm-go options such as
// anyllmlib.WithAPIKey or anyllmlib.WithBaseURL; without a key the backend
// falls back to its usual environment variable.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if !slices.Contains(Backends, backend) {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (have %s)", backend, strings.Join(Backends, ", "))
	}
	if model == "" {
		model = defaultModels[backend]
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: %s: model is required", backend)
	}

	client, err := dial(backend, opts)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", backend, err)
	}
	return &Provider{client: client, backend: backend, model: model}, nil
}

func dial(backend string, opts []anyllmlib.Option) (anyllmlib.Provider, error) {
	switch backend {
	case "anthropic":
		return anthropic.New(opts...)
	case "openai":
		return anyllmoai.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	default:
		return llamafile.New(opts...)
	}
}

// Backend returns the lowercased backend name.
func (p *Provider) Backend() string { return p.backend }

// Model returns the model identifier sent with every request.
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.client.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", p.backend, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: response has no choices", p.backend)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return nil, ErrTruncated
	}

	out := &llm.CompletionResponse{Content: choice.Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (p *Provider) Capabilities() llm.ModelCapabilities { return capabilitiesFor(p.model) }

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}

// limits is matched by lowercased model prefix; longer prefixes first.
var limits = []struct {
	prefix string
	caps   llm.ModelCapabilities
}{
	{"claude-sonnet-4", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 64_000}},
	{"claude-opus-4", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 32_000}},
	{"claude", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192}},
	{"gpt-4o", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}},
	{"gemini", llm.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"deepseek", llm.ModelCapabilities{ContextWindow: 64_000, MaxOutputTokens: 8_192}},
	{"mistral", llm.ModelCapabilities{ContextWindow: 32_000, MaxOutputTokens: 8_192}},
}

func capabilitiesFor(model string) llm.ModelCapabilities {
	m := strings.ToLower(model)
	for _, l := range limits {
		if strings.HasPrefix(m, l.prefix) {
			return l.caps
		}
	}
	return llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048}
}

var _ llm.Provider = (*Provider)(nil)
