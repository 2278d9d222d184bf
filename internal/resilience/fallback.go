package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] produced a
// result, either because it failed or because its breaker was open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is the breaker template applied to every entry of a
// [FallbackGroup]. The Name field is overwritten with the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// EntryStatus describes one entry of a [FallbackGroup] for readiness output.
type EntryStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// FallbackGroup holds a primary value and its fallbacks, each behind its own
// [CircuitBreaker]. Entries are registered during setup; AddFallback must
// not race with calls to [ExecuteWithResult].
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry. Entries are tried in the order they were
// added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Primary returns the first entry's value.
func (fg *FallbackGroup[T]) Primary() T {
	return fg.entries[0].value
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Status reports the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	out := make([]EntryStatus, len(fg.entries))
	for i := range fg.entries {
		out[i] = EntryStatus{Name: fg.entries[i].name, State: fg.entries[i].breaker.State().String()}
	}
	return out
}

// Available reports whether at least one entry's breaker admits calls.
func (fg *FallbackGroup[T]) Available() bool {
	for i := range fg.entries {
		if fg.entries[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute is [ExecuteWithResult] for calls without a result value.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult calls fn with each entry in order until one succeeds and
// returns its result. Entries with an open breaker are skipped. When ctx is
// done the walk stops and ctx.Err() is returned; a cancellation does not
// count against the entry's breaker. When every entry fails the error wraps
// [ErrAllFailed] together with each entry's error.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		entry := &fg.entries[i]

		var (
			result    R
			cancelled bool
		)
		err := entry.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(ctx, entry.value)
			if callErr != nil && ctx.Err() != nil {
				cancelled = true
				return nil
			}
			return callErr
		})
		if cancelled {
			return zero, ctx.Err()
		}
		if err == nil {
			if i > 0 {
				slog.Info("served by fallback provider", "provider", entry.name, "position", i)
			}
			return result, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "error", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
