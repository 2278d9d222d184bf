package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher keeps the latest valid config of one file. It polls the file's
// modification time and can be asked to reload at any time, e.g. on SIGHUP.
// An edit that fails to parse or validate is logged and the previous config
// stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	// reloadMu serialises reloads so onChange calls never overlap.
	reloadMu sync.Mutex

	mu   sync.Mutex
	snap snapshot
}

// snapshot is one accepted version of the file.
type snapshot struct {
	cfg   *Config
	hash  [sha256.Size]byte
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path. Polling starts with [Watcher.Run].
// onChange runs after each accepted change, on the goroutine that
// detected it.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.snap = snap
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.cfg
}

// Run polls until ctx is done. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.modified() {
				continue
			}
			if _, err := w.Reload(); err != nil {
				slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Reload reads the file now. It reports whether the content changed; an
// unchanged file only refreshes the remembered modification time. On error
// the current config is kept.
func (w *Watcher) Reload() (bool, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	next, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	prev := w.snap
	if next.hash == prev.hash {
		w.snap.mtime = next.mtime
		w.mu.Unlock()
		return false, nil
	}
	w.snap = next
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg)
	}
	return true, nil
}

// modified reports whether the file's modification time moved since the
// last read. A stat error counts as unmodified and is logged.
func (w *Watcher) modified() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.snap.mtime)
}

func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, hash: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
