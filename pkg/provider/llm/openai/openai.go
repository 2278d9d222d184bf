// Package openai provides an LLM provider for the OpenAI Chat Completions
// API and the self-hosted servers that speak it (vLLM, LM Studio, LocalAI).
//
// The adapter does not retry: failed calls surface immediately so the
// fallback group and the rule interpreter can take over.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/cantor/pkg/provider/llm"
)

// ErrTruncated is returned when the model stopped at the token limit. A cut
// off rendition would drop words of the text.
var ErrTruncated = errors.New("openai: completion truncated at the token limit")

// Provider implements llm.Provider over a Chat Completions endpoint.
type Provider struct {
	client oai.Client
	model  string
	caps   llm.ModelCapabilities
}

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	caps         *llm.ModelCapabilities
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL points the client at another server, e.g.
// "http://localhost:8000/v1". An API key is optional once a base URL is set.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithCapabilities overrides the capabilities derived from the model name.
// Use it for self-hosted models the built-in table does not know.
func WithCapabilities(caps llm.ModelCapabilities) Option {
	return func(c *config) { c.caps = &caps }
}

// New constructs a Provider for model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && cfg.baseURL == "" {
		return nil, fmt.Errorf("openai: an API key is required for the hosted API")
	}

	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	caps := capabilitiesFor(model)
	if cfg.caps != nil {
		caps = *cfg.caps
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model, caps: caps}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return nil, ErrTruncated
	}
	return &llm.CompletionResponse{
		Content: choice.Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.caps }

// capabilitiesFor knows the hosted model families. Anything else gets a
// conservative default.
func capabilitiesFor(model string) llm.ModelCapabilities {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"):
		return llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}
	case strings.HasPrefix(m, "gpt-4"):
		return llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}
	default:
		return llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048}
	}
}

var roles = map[string]func(string) oai.ChatCompletionMessageParamUnion{
	"system":    func(s string) oai.ChatCompletionMessageParamUnion { return oai.SystemMessage(s) },
	"user":      func(s string) oai.ChatCompletionMessageParamUnion { return oai.UserMessage(s) },
	"assistant": func(s string) oai.ChatCompletionMessageParamUnion { return oai.AssistantMessage(s) },
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		mk, ok := roles[m.Role]
		if !ok {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: unknown message role %q", m.Role)
		}
		msgs = append(msgs, mk(m.Content))
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

var _ llm.Provider = (*Provider)(nil)
