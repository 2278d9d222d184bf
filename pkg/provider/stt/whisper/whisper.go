// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It talks to a running whisper-server binary, which exposes POST /inference
// accepting a multipart WAV upload. Clips are converted to 16 kHz mono before
// upload, the rate whisper models are trained on.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("small"))
//	tr, err := p.Transcribe(ctx, clip, stt.Options{Language: "hi-IN"})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/stt"
)

const (
	inferencePath     = "/inference"
	whisperSampleRate = 16000
	defaultTimeout    = 60 * time.Second

	// maxPromptRunes bounds the initial prompt; whisper truncates long
	// prompts to a few hundred tokens anyway.
	maxPromptRunes = 600
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. When empty
// the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New creates a Provider targeting serverURL (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. Keywords are sent as the initial
// prompt, which biases whisper towards their spelling.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error) {
	if len(clip.PCM) == 0 {
		return stt.Transcript{}, errors.New("whisper: empty clip")
	}
	mono := clip.ToMono(whisperSampleRate)
	wav := audio.EncodeWAV(mono)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
		"language":        stt.PrimaryLanguage(opts.Language),
		"model":           p.model,
		"prompt":          buildPrompt(opts.Keywords),
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+inferencePath, &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(result.Text),
		Duration: time.Duration(mono.Duration() * float64(time.Second)),
	}, nil
}

// buildPrompt joins keywords into a whisper initial prompt, capped at
// maxPromptRunes.
func buildPrompt(keywords []string) string {
	var b strings.Builder
	runes := 0
	for _, kw := range keywords {
		n := len([]rune(kw)) + 2
		if runes+n > maxPromptRunes {
			break
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(kw)
		runes += n
	}
	return b.String()
}

var _ stt.Provider = (*Provider)(nil)
