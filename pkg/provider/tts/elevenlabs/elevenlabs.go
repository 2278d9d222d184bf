// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs REST API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrWong99/cantor/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	speechPathFmt  = "/v1/text-to-speech/%s"
	voicesPath     = "/v1/voices"

	// DefaultModel is the multilingual model used when none is configured.
	DefaultModel = "eleven_multilingual_v2"
)

// VoiceSettings mirrors the ElevenLabs voice_settings object.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings are tuned for expressive scripture reading.
var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.5,
	SimilarityBoost: 0.75,
	Style:           0.5,
	UseSpeakerBoost: true,
}

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API root, e.g. for a proxy or a test server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithVoiceSettings overrides [DefaultVoiceSettings].
func WithVoiceSettings(vs VoiceSettings) Option {
	return func(p *Provider) {
		p.settings = vs
	}
}

// Provider implements tts.Provider backed by the ElevenLabs REST API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	settings   VoiceSettings
	httpClient *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      DefaultModel,
		baseURL:    defaultBaseURL,
		settings:   DefaultVoiceSettings,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// APIError is returned when ElevenLabs answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs: status %d: %s", e.StatusCode, e.Message)
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize implements tts.Provider. The returned audio is MPEG.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if req.VoiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}
	model := req.Model
	if model == "" {
		model = p.model
	}

	body, err := json.Marshal(speechRequest{Text: req.Text, ModelID: model, VoiceSettings: p.settings})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	endpoint := p.baseURL + fmt.Sprintf(speechPathFmt, url.PathEscape(req.VoiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, parseAPIError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &tts.Audio{Data: data, ContentType: contentType, Model: model}, nil
}

// parseAPIError extracts detail.message (or a plain string detail) from an
// error response body.
func parseAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &envelope) != nil || len(envelope.Detail) == 0 {
		return apiErr
	}
	var detail struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(envelope.Detail, &detail) == nil && detail.Message != "" {
		apiErr.Message = detail.Message
		return apiErr
	}
	var s string
	if json.Unmarshal(envelope.Detail, &s) == nil && s != "" {
		apiErr.Message = s
	}
	return apiErr
}

// ---- ListVoices ----

type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	return parseVoicesResponse(data)
}

func parseVoicesResponse(data []byte) ([]tts.Voice, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{ID: v.VoiceID, Name: v.Name, Provider: "elevenlabs", Metadata: meta})
	}
	return voices, nil
}

// DefaultVoices returns the premade ElevenLabs voices offered before a
// catalogue has been fetched.
func DefaultVoices() []tts.Voice {
	premade := []struct{ id, name string }{
		{"pMsXgVXv3BLzUgSXRplE", "Aria"},
		{"EXAVITQu4vr4xnSDxMaL", "Sarah"},
		{"onwK4e9ZLuTAKqWW03F9", "Daniel"},
		{"21m00Tcm4TlvDq8ikWAM", "Rachel"},
		{"AZnzlk1XvdvUeBnXmlld", "Domi"},
		{"MF3mGyEYCl7XYWbV9V6O", "Elli"},
		{"TxGEqnHWrfWFTfGW9XjX", "Josh"},
		{"VR6AewLTigWG4xSOukaG", "Arnold"},
		{"pNInz6obpgDQGcFmaJgB", "Adam"},
		{"yoZ06aMxZJJ28mfd3POQ", "Sam"},
	}
	out := make([]tts.Voice, len(premade))
	for i, v := range premade {
		out[i] = tts.Voice{ID: v.id, Name: v.name, Provider: "elevenlabs", Metadata: map[string]string{"category": "premade"}}
	}
	return out
}

var _ tts.Provider = (*Provider)(nil)
