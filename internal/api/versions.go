package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrWong99/cantor/internal/studio"
	"github.com/MrWong99/cantor/pkg/audio"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	info, err := sess.Generate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Versions())
}

// version resolves the {id} and {n} path values.
func (s *Server) version(w http.ResponseWriter, r *http.Request) (studio.Version, bool) {
	sess, ok := s.session(w, r)
	if !ok {
		return studio.Version{}, false
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 1 {
		badRequest(w, "version number must be a positive integer")
		return studio.Version{}, false
	}
	v, err := sess.Version(n)
	if err != nil {
		writeError(w, r, err)
		return studio.Version{}, false
	}
	return v, true
}

func (s *Server) handleVersionAudio(w http.ResponseWriter, r *http.Request) {
	v, ok := s.version(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", v.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(v.Audio)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="version-%d%s"`, v.Number, extension(v.ContentType)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v.Audio)
}

type waveformResponse struct {
	Version  int       `json:"version"`
	Duration float64   `json:"duration"`
	Peaks    []float64 `json:"peaks"`
}

// handleWaveform serves the peak envelope of a WAV version. Compressed
// versions are answered with 415 since they are not decoded server side.
func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	v, ok := s.version(w, r)
	if !ok {
		return
	}
	points := defaultWaveformPoints
	if q := r.URL.Query().Get("points"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > maxWaveformPoints {
			badRequest(w, "points must be between 1 and %d", maxWaveformPoints)
			return
		}
		points = n
	}
	clip, err := audio.DecodeWAV(v.Audio)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, waveformResponse{
		Version:  v.Number,
		Duration: clip.Duration(),
		Peaks:    audio.Peaks(clip, points),
	})
}

func extension(contentType string) string {
	switch contentType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	}
	return ""
}
