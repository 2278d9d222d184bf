// Package deepgram provides a Deepgram-backed STT provider using the
// pre-recorded /v1/listen REST endpoint. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	listenPath     = "/v1/listen"
	defaultModel   = "nova-3"

	// maxKeywords bounds the hint list; Deepgram rejects very long URLs.
	maxKeywords = 50
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API root, e.g. for a test server.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// Provider implements stt.Provider backed by the Deepgram REST API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// buildURL returns the listen URL with model, language and keyword hints.
// Nova-3 models take "keyterm"; older models take "keywords".
func (p *Provider) buildURL(opts stt.Options) string {
	q := url.Values{}
	q.Set("model", p.model)
	q.Set("smart_format", "true")
	if lang := stt.PrimaryLanguage(opts.Language); lang != "" {
		q.Set("language", lang)
	}
	param := "keywords"
	if strings.HasPrefix(p.model, "nova-3") {
		param = "keyterm"
	}
	for i, kw := range opts.Keywords {
		if i == maxKeywords {
			break
		}
		q.Add(param, kw)
	}
	return p.baseURL + listenPath + "?" + q.Encode()
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error) {
	if len(clip.PCM) == 0 {
		return stt.Transcript{}, errors.New("deepgram: empty clip")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(opts), bytes.NewReader(audio.EncodeWAV(clip)))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return parseResponse(data)
}

type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func parseResponse(data []byte) (stt.Transcript, error) {
	var resp listenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return stt.Transcript{}, errors.New("deepgram: response has no alternatives")
	}

	alt := resp.Results.Channels[0].Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}
	return stt.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Words:      words,
		Duration:   seconds(resp.Metadata.Duration),
	}, nil
}

// seconds converts fractional seconds to a Duration rounded to the microsecond.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}

var _ stt.Provider = (*Provider)(nil)
