// Package coqui speaks to a self-hosted Coqui TTS server
// (ghcr.io/coqui-ai/tts-cpu), the keyless fallback behind ElevenLabs.
//
// Coqui models do not understand performance tags; they are removed and the
// plain words are read.
package coqui

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/tts"
)

const (
	ttsPath     = "/api/tts"
	detailsPath = "/details"

	// maxWAVBytes bounds a synthesised clip, about ten minutes of 22 kHz
	// mono PCM.
	maxWAVBytes = 32 << 20
)

var tag = regexp.MustCompile(`\[[^\]]+\]`)

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage fixes the language_id sent to multilingual models. By default
// the primary subtag of the request language is sent, "hi" for "hi-IN".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds each HTTP request. Default: one minute.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// Provider is a [tts.Provider] for one Coqui server.
type Provider struct {
	base     string
	language string
	client   *http.Client
}

// New returns a provider for the server at baseURL, for example
// "http://localhost:5002".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: server URL is required")
	}
	p := &Provider{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize reads req.Text without its tags. VoiceID becomes the
// speaker_id and may be empty for single-speaker models.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	text := strings.Join(strings.Fields(tag.ReplaceAllString(req.Text, " ")), " ")
	if text == "" {
		return nil, errors.New("coqui: text has no words outside tags")
	}

	q := url.Values{"text": {text}}
	if req.VoiceID != "" {
		q.Set("speaker_id", req.VoiceID)
	}
	if lang := p.languageID(req.Language); lang != "" {
		q.Set("language_id", lang)
	}

	wav, err := p.get(ctx, ttsPath, q, "audio/wav")
	if err != nil {
		return nil, err
	}
	if _, err := audio.DecodeWAV(wav); err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return &tts.Audio{Data: wav, ContentType: "audio/wav", Model: "coqui"}, nil
}

func (p *Provider) languageID(requested string) string {
	if p.language != "" {
		return p.language
	}
	primary, _, _ := strings.Cut(requested, "-")
	return strings.ToLower(primary)
}

// ListVoices lists the speakers of a multi-speaker model in name order. A
// single-speaker model yields one voice with an empty ID named after the
// model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	body, err := p.get(ctx, detailsPath, nil, "application/json")
	if err != nil {
		return nil, err
	}
	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("coqui: decode %s: %w", detailsPath, err)
	}

	if len(details.Speakers) == 0 {
		name := cmp.Or(details.ModelName, "default")
		return []tts.Voice{{Name: name, Provider: "coqui", Metadata: map[string]string{"model_name": name}}}, nil
	}
	voices := make([]tts.Voice, 0, len(details.Speakers))
	for _, s := range slices.Sorted(slices.Values(details.Speakers)) {
		voices = append(voices, tts.Voice{
			ID:       s,
			Name:     s,
			Provider: "coqui",
			Metadata: map[string]string{"model_name": details.ModelName},
		})
	}
	return voices, nil
}

func (p *Provider) get(ctx context.Context, path string, q url.Values, accept string) ([]byte, error) {
	u := p.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s: status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWAVBytes))
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: read body: %w", path, err)
	}
	return body, nil
}

var _ tts.Provider = (*Provider)(nil)
