package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Service caches the current settings and notifies listeners when they are
// saved. It is safe for concurrent use.
type Service struct {
	store Store

	mu        sync.RWMutex
	current   Settings
	listeners []func(Settings)
}

// NewService loads the settings from store.
func NewService(ctx context.Context, store Store) (*Service, error) {
	s, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, current: s}, nil
}

// Get returns a copy of the current settings.
func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update merges update into the current settings with [Settings.Merge],
// persists the result and notifies listeners. It returns the saved
// settings.
func (s *Service) Update(ctx context.Context, update Settings) (Settings, error) {
	s.mu.Lock()
	next := s.current.Merge(update)
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return Settings{}, fmt.Errorf("settings: update: %w", err)
	}
	s.current = next
	listeners := append([]func(Settings){}, s.listeners...)
	s.mu.Unlock()

	slog.Info("settings saved", "llm", next.HasLLM(), "tts", next.HasTTS(), "tts_model", next.TTSModel)
	for _, fn := range listeners {
		fn(next.Clone())
	}
	return next.Clone(), nil
}

// OnChange registers fn to run after every successful [Service.Update].
// Listeners run synchronously in registration order.
func (s *Service) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
