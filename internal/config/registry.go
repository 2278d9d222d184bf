package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/cantor/pkg/provider/llm"
	"github.com/MrWong99/cantor/pkg/provider/stt"
	"github.com/MrWong99/cantor/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(ProviderEntry) (llm.Provider, error)
	tts map[string]func(ProviderEntry) (tts.Provider, error)
	stt map[string]func(ProviderEntry) (stt.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts: make(map[string]func(ProviderEntry) (tts.Provider, error)),
		stt: make(map[string]func(ProviderEntry) (stt.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(&r.mu, r.llm, name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	register(&r.mu, r.tts, name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	register(&r.mu, r.stt, name, factory)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(&r.mu, r.llm, "llm", entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(&r.mu, r.tts, "tts", entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(&r.mu, r.stt, "stt", entry)
}

// Names returns the registered provider names of one kind ("llm", "tts" or
// "stt"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "llm":
		names = keys(r.llm)
	case "tts":
		names = keys(r.tts)
	case "stt":
		names = keys(r.stt)
	}
	slices.Sort(names)
	return names
}

func register[T any](mu *sync.RWMutex, m map[string]func(ProviderEntry) (T, error), name string, factory func(ProviderEntry) (T, error)) {
	mu.Lock()
	defer mu.Unlock()
	m[name] = factory
}

func create[T any](mu *sync.RWMutex, m map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	mu.RLock()
	factory, ok := m[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
