package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/cantor/internal/config"
)

const (
	hindiStudio = `
server:
  log_level: info
studio:
  default_language: hi-IN
`
	englishStudio = `
server:
  log_level: debug
studio:
  default_language: en-IN
`
	brokenStudio = `
server:
  log_level: loud
`
)

// edit rewrites the file and pushes its mtime a second ahead so filesystems
// with coarse timestamps still see the change.
func edit(t *testing.T, path, content string) {
	t.Helper()
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
}

func configFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cantor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	w, err := config.NewWatcher(configFile(t, hindiStudio), nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if cfg := w.Current(); cfg.Studio.DefaultLanguage != "hi-IN" || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() = %+v", cfg.Studio)
	}

	if _, err := config.NewWatcher(configFile(t, brokenStudio), nil); err == nil {
		t.Error("expected error for an invalid file")
	}
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		write      string // empty touches the file without changing it
		wantChange bool
		wantLang   string
	}{
		{name: "content change", write: englishStudio, wantChange: true, wantLang: "en-IN"},
		{name: "invalid edit keeps config", write: brokenStudio, wantLang: "hi-IN"},
		{name: "touch only", wantLang: "hi-IN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := configFile(t, hindiStudio)

			diffs := make(chan config.ConfigDiff, 4)
			w, err := config.NewWatcher(path, func(old, new *config.Config) {
				diffs <- config.Diff(old, new)
			}, config.WithInterval(20*time.Millisecond))
			if err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()
			t.Cleanup(func() {
				cancel()
				<-done
			})

			edit(t, path, tt.write)

			select {
			case d := <-diffs:
				if !tt.wantChange {
					t.Fatalf("unexpected change %+v", d)
				}
				if !d.LanguagesChanged || !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("diff = %+v", d)
				}
			case <-time.After(300 * time.Millisecond):
				if tt.wantChange {
					t.Fatal("change not reported")
				}
			}
			if got := w.Current().Studio.DefaultLanguage; got != tt.wantLang {
				t.Errorf("default language = %q, want %q", got, tt.wantLang)
			}
		})
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	path := configFile(t, hindiStudio)
	calls := 0
	w, err := config.NewWatcher(path, func(_, _ *config.Config) { calls++ })
	if err != nil {
		t.Fatal(err)
	}

	if changed, err := w.Reload(); err != nil || changed {
		t.Fatalf("Reload of an unchanged file = %v, %v", changed, err)
	}

	edit(t, path, englishStudio)
	if changed, err := w.Reload(); err != nil || !changed {
		t.Fatalf("Reload after edit = %v, %v", changed, err)
	}

	edit(t, path, brokenStudio)
	if _, err := w.Reload(); err == nil {
		t.Fatal("expected error for an invalid edit")
	}
	if calls != 1 || w.Current().Studio.DefaultLanguage != "en-IN" {
		t.Errorf("calls = %d, default language = %q", calls, w.Current().Studio.DefaultLanguage)
	}
}
