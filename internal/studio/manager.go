package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the open sessions.
type Manager struct {
	catalogue *Catalogue
	cfg       Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a manager that creates sessions with cfg.
func NewManager(catalogue *Catalogue, cfg Config) (*Manager, error) {
	if catalogue == nil {
		return nil, errors.New("studio: catalogue is required")
	}
	if cfg.Interpreter == nil {
		return nil, errors.New("studio: interpreter is required")
	}
	cfg.setDefaults()
	return &Manager{
		catalogue: catalogue,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
	}, nil
}

// Catalogue returns the language catalogue.
func (m *Manager) Catalogue() *Catalogue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalogue
}

// SetCatalogue replaces the language catalogue. Open sessions keep their
// language and text.
func (m *Manager) SetCatalogue(c *Catalogue) {
	m.mu.Lock()
	m.catalogue = c
	m.mu.Unlock()
}

// Create opens a session in the given language. An empty code selects the
// catalogue default.
func (m *Manager) Create(ctx context.Context, code string) (*Session, error) {
	cat := m.Catalogue()
	lang := cat.Default()
	if code != "" {
		var ok bool
		if lang, ok = cat.Lookup(code); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
		}
	}

	s := NewSession(uuid.NewString(), lang, m.cfg)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session opened", "session_id", s.id, "language", lang.Code)
	return s, nil
}

// Get returns the open session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// SetLanguage switches a session to another catalogue language.
func (m *Manager) SetLanguage(id, code string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	lang, ok := m.Catalogue().Lookup(code)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	return s.SetLanguage(lang)
}

// List returns the open sessions ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int { return a.createdAt.Compare(b.createdAt) })
	return out
}

// Close closes and forgets one session.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session closed", "session_id", id)
	return s.Close()
}

// ReapIdle closes sessions without activity for longer than maxIdle and
// returns how many it closed.
func (m *Manager) ReapIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := m.cfg.Now().Add(-maxIdle)
	var idle []string
	for _, s := range m.List() {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, s.id)
		}
	}
	n := 0
	for _, id := range idle {
		if err := m.Close(ctx, id); err == nil {
			n++
		}
	}
	return n
}

// RunReaper calls [Manager.ReapIdle] every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval, maxIdle time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.ReapIdle(ctx, maxIdle); n > 0 {
				slog.Info("closed idle sessions", "count", n)
			}
		}
	}
}

// CloseAll closes every open session.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for id, s := range all {
		m.cfg.Metrics.ActiveSessions.Add(ctx, -1)
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
