package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the settings in a JSON document that maps storage keys to
// values, so other documents may share the file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store over path. The file is created on the first
// save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the settings, overlaying the stored values on [Default].
func (f *FileStore) Load(_ context.Context) (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return Settings{}, err
	}
	s := Default()
	if raw, ok := doc[StorageKey]; ok {
		if err := json.Unmarshal(raw, &s); err != nil {
			return Settings{}, fmt.Errorf("settings: decode %s: %w", f.path, err)
		}
	}
	s.Normalize()
	return s, nil
}

// Save writes the settings, keeping any other keys in the file. The file is
// replaced atomically and readable only by its owner.
func (f *FileStore) Save(_ context.Context, s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	doc[StorageKey] = raw

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("settings: replace %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", f.path, err)
	}
	doc := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", f.path, err)
	}
	return doc, nil
}
