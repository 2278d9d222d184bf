// Package api serves the studio over HTTP: JSON endpoints for sessions,
// feedback, synthesis and settings, plus a WebSocket stream of session
// events.
//
// Every error response is a JSON object with a single "error" field. Domain
// errors map to status codes in [statusFor].
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/internal/settings"
	"github.com/MrWong99/cantor/internal/studio"
	"github.com/MrWong99/cantor/internal/transcript"
	"github.com/MrWong99/cantor/pkg/audio"
	"github.com/MrWong99/cantor/pkg/provider/tts"
)

const (
	maxJSONBody  = 1 << 20
	maxAudioBody = 25 << 20

	defaultWaveformPoints = 200
	maxWaveformPoints     = 4000
)

// Transcriber turns a spoken feedback clip into corrected text.
// [*transcript.Pipeline] implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip, language, sacredText string) (*transcript.CorrectedTranscript, error)
}

// VoiceLister fetches the voices of the configured speech backend. It
// returns an error wrapping [studio.ErrConfiguration] when no credential is
// set.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]tts.Voice, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithTranscriber enables spoken feedback.
func WithTranscriber(t Transcriber) Option {
	return func(s *Server) { s.transcriber = t }
}

// WithVoiceLister enables fetching the backend voice catalogue.
func WithVoiceLister(v VoiceLister) Option {
	return func(s *Server) { s.voices = v }
}

// WithMetrics sets the instruments used by the request middleware.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server holds the collaborators behind the HTTP endpoints.
type Server struct {
	sessions    *studio.Manager
	settings    *settings.Service
	transcriber Transcriber
	voices      VoiceLister
	metrics     *observe.Metrics
}

// New returns a server over the given session manager and settings.
func New(sessions *studio.Manager, st *settings.Service, opts ...Option) (*Server, error) {
	if sessions == nil {
		return nil, errors.New("api: session manager is required")
	}
	if st == nil {
		return nil, errors.New("api: settings service is required")
	}
	s := &Server{sessions: sessions, settings: st}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tags", s.handleTags)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("PUT /api/sessions/{id}/text", s.handleSetText)
	mux.HandleFunc("PUT /api/sessions/{id}/language", s.handleSetLanguage)
	mux.HandleFunc("POST /api/sessions/{id}/feedback", s.handleFeedback)
	mux.HandleFunc("POST /api/sessions/{id}/feedback/audio", s.handleSpokenFeedback)
	mux.HandleFunc("POST /api/sessions/{id}/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/sessions/{id}/versions", s.handleVersions)
	mux.HandleFunc("GET /api/sessions/{id}/versions/{n}/audio", s.handleVersionAudio)
	mux.HandleFunc("GET /api/sessions/{id}/versions/{n}/waveform", s.handleWaveform)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleEvents)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
}

// Handler returns the API routes wrapped in the tracing and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var synth *studio.SynthesisError
	switch {
	case errors.Is(err, studio.ErrMissingInput), errors.Is(err, transcript.ErrNoSpeech):
		return http.StatusUnprocessableEntity
	case errors.Is(err, studio.ErrConfiguration):
		return http.StatusPreconditionFailed
	case errors.As(err, &synth):
		return http.StatusBadGateway
	case errors.Is(err, studio.ErrStaleResult):
		return http.StatusConflict
	case errors.Is(err, studio.ErrSessionNotFound), errors.Is(err, studio.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, studio.ErrClosed):
		return http.StatusGone
	case errors.Is(err, studio.ErrUnknownLanguage):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrNotWAV):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "err", err, "status", status)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf(format, args...)})
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		badRequest(w, "invalid request body: %v", err)
		return false
	}
	return true
}
