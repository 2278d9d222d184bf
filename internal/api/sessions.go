package api

import (
	"net/http"

	"github.com/MrWong99/cantor/internal/markup"
	"github.com/MrWong99/cantor/internal/studio"
)

// sessionView is a snapshot plus the highlighted markup for display.
type sessionView struct {
	studio.Snapshot
	MarkupHTML string `json:"markup_html"`
}

func viewOf(s *studio.Session) sessionView {
	snap := s.Snapshot()
	return sessionView{Snapshot: snap, MarkupHTML: markup.Highlight(snap.Markup)}
}

// session resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*studio.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

type tagView struct {
	Name     string   `json:"name"`
	Token    string   `json:"token"`
	Keywords []string `json:"keywords"`
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	tags := markup.Tags()
	out := make([]tagView, len(tags))
	for i, t := range tags {
		out[i] = tagView{Name: string(t), Token: t.Token(), Keywords: markup.Keywords(t)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tags":        out,
		"default_tag": string(markup.DefaultTag),
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	cat := s.sessions.Catalogue()
	writeJSON(w, http.StatusOK, map[string]any{
		"default":   cat.Default().Code,
		"languages": cat.All(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.sessions.List()
	out := make([]sessionView, len(list))
	for i, sess := range list {
		out[i] = viewOf(sess)
	}
	writeJSON(w, http.StatusOK, out)
}

type createSessionRequest struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	sess, err := s.sessions.Create(r.Context(), req.Language)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Text != "" {
		if err := sess.SetText(req.Text); err != nil {
			writeError(w, r, err)
			return
		}
	}
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSetText(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req setTextRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := sess.SetText(req.Text); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type setLanguageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req setLanguageRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Language == "" {
		badRequest(w, "language is required")
		return
	}
	id := r.PathValue("id")
	if err := s.sessions.SetLanguage(id, req.Language); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSession(w, r)
}
