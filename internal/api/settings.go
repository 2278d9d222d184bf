package api

import (
	"errors"
	"net/http"

	"github.com/MrWong99/cantor/internal/observe"
	"github.com/MrWong99/cantor/internal/settings"
	"github.com/MrWong99/cantor/internal/studio"
	"github.com/MrWong99/cantor/pkg/provider/tts"
)

// settingsView is the redacted settings document as served to clients.
type settingsView struct {
	settings.Settings
	CustomVoicesText string `json:"custom_voices_text"`
	LLMEnabled       bool   `json:"llm_enabled"`
	TTSEnabled       bool   `json:"tts_enabled"`
}

func settingsViewOf(st settings.Settings) settingsView {
	return settingsView{
		Settings:         st.Redacted(),
		CustomVoicesText: settings.FormatCustomVoices(st.CustomVoices),
		LLMEnabled:       st.HasLLM(),
		TTSEnabled:       st.HasTTS(),
	}
}

// settingsUpdate is the PUT body. CustomVoicesText, when present, replaces
// CustomVoices with the parsed "Name | id" lines.
type settingsUpdate struct {
	settings.Settings
	CustomVoicesText *string `json:"custom_voices_text,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, settingsViewOf(s.settings.Get()))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if !decodeJSON(w, r, &req, false) {
		return
	}
	update := req.Settings
	if req.CustomVoicesText != nil {
		update.CustomVoices = settings.ParseCustomVoices(*req.CustomVoicesText)
	}
	saved, err := s.settings.Update(r.Context(), update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsViewOf(saved))
}

type voicesResponse struct {
	// Source is "backend" when the list was fetched from the speech
	// backend and "settings" when it is the saved voice list.
	Source string      `json:"source"`
	Voices []tts.Voice `json:"voices"`
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.voices != nil {
		voices, err := s.voices.ListVoices(r.Context())
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, voicesResponse{Source: "backend", Voices: voices})
			return
		case !errors.Is(err, studio.ErrConfiguration):
			observe.Logger(r.Context()).Warn("fetch voices failed", "err", err)
			writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
			return
		}
	}

	saved := s.settings.Get().CustomVoices
	out := make([]tts.Voice, len(saved))
	for i, v := range saved {
		out[i] = tts.Voice{ID: v.ID, Name: v.Name}
	}
	writeJSON(w, http.StatusOK, voicesResponse{Source: "settings", Voices: out})
}
