package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/MrWong99/cantor/internal/studio"
	"github.com/MrWong99/cantor/internal/transcript"
	"github.com/MrWong99/cantor/pkg/audio"
)

type feedbackRequest struct {
	Text string `json:"text"`
}

type feedbackResponse struct {
	Outcome    studio.Outcome                  `json:"outcome"`
	Session    sessionView                     `json:"session"`
	Transcript *transcript.CorrectedTranscript `json:"transcript,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req feedbackRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	out, err := sess.ProcessFeedback(r.Context(), req.Text, studio.SourceTyped)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Outcome: out, Session: viewOf(sess)})
}

// handleSpokenFeedback accepts a WAV clip either as the raw request body or
// as the "audio" field of a multipart form.
func (s *Server) handleSpokenFeedback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if s.transcriber == nil {
		writeError(w, r, fmt.Errorf("%w: speech recognition", studio.ErrConfiguration))
		return
	}

	data, err := readAudio(w, r)
	if err != nil {
		badRequest(w, "read audio: %v", err)
		return
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	heard, err := s.transcriber.Transcribe(r.Context(), clip, sess.Language(), sess.SacredText())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := sess.ProcessFeedback(r.Context(), heard.Corrected, studio.SourceSpoken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Outcome: out, Session: viewOf(sess), Transcript: heard})
}

func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBody)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}
	f, _, err := r.FormFile("audio")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
