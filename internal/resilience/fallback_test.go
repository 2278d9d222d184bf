package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newGroup(maxFailures int) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		failing  map[string]bool
		wantUsed string
		wantErr  error
	}{
		{name: "primary healthy", wantUsed: "primary"},
		{name: "primary fails", failing: map[string]bool{"primary": true}, wantUsed: "secondary"},
		{name: "all fail", failing: map[string]bool{"primary": true, "secondary": true}, wantErr: ErrAllFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := newGroup(3)
			var used string
			err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
				if tt.failing[v] {
					return errTest
				}
				used = v
				return nil
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, errTest) {
					t.Errorf("err = %v, want joined provider errors", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if used != tt.wantUsed {
				t.Fatalf("used = %q, want %q", used, tt.wantUsed)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := newGroup(2)
	for range 2 {
		_ = fg.Execute(context.Background(), func(_ context.Context, v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	var calls []string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		calls = append(calls, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0] != "secondary" {
		t.Fatalf("calls = %v, want only secondary", calls)
	}

	status := fg.Status()
	if status[0].State != "open" || status[1].State != "closed" {
		t.Fatalf("status = %+v", status)
	}
	if !fg.Available() {
		t.Fatal("Available() = false with a closed fallback")
	}
}

func TestFallbackGroup_AvailableFalseWhenAllOpen(t *testing.T) {
	t.Parallel()
	fg := newGroup(1)
	_ = fg.Execute(context.Background(), func(context.Context, string) error { return errTest })
	if fg.Available() {
		t.Fatal("Available() = true with every breaker open")
	}
}

func TestExecuteWithResult_StopsOnCancel(t *testing.T) {
	t.Parallel()
	fg := newGroup(1)
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v string) (string, error) {
		calls++
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Fatal("cancellation reported as ErrAllFailed")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if fg.Status()[0].State != "closed" {
		t.Fatal("cancellation tripped the primary breaker")
	}
}

func TestExecuteWithResult_ErrorNamesProviders(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	_, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v int) (string, error) {
		return "", errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	for _, name := range []string{"ten", "twenty"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %q", err, name)
		}
	}
	if fg.Len() != 2 || fg.Primary() != 10 {
		t.Fatalf("Len() = %d, Primary() = %d", fg.Len(), fg.Primary())
	}
}
