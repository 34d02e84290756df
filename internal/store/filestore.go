package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists keys as a single JSON file. Writes go through a temp
// file and rename so a crash mid-write never leaves a corrupt state file.
// When constructed with a secret, the file content is encrypted at rest.
type FileStore struct {
	path   string
	cipher *stateCipher

	mu   sync.Mutex
	data map[string]string
}

// NewFileStore opens (or creates) the state file at path. If secret is
// non-empty the file is sealed with a key derived from it; opening an
// encrypted file with the wrong secret fails.
func NewFileStore(path, secret string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]string),
	}

	if secret != "" {
		c, err := newStateCipher(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to derive state cipher: %w", err)
		}
		fs.cipher = c
	}

	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) Get(ctx context.Context, key string) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	value, ok := fs.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (fs *FileStore) Set(ctx context.Context, key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.data[key] = value
	return fs.flush()
}

func (fs *FileStore) Delete(ctx context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data[key]; !ok {
		return nil
	}
	delete(fs.data, key)
	return fs.flush()
}

func (fs *FileStore) load() error {
	raw, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	if fs.cipher != nil {
		raw, err = fs.cipher.open(raw)
		if err != nil {
			return fmt.Errorf("failed to decrypt state file: %w", err)
		}
	}

	if err := json.Unmarshal(raw, &fs.data); err != nil {
		return fmt.Errorf("state file is corrupt: %w", err)
	}
	return nil
}

// flush writes the full map atomically. Caller must hold fs.mu.
func (fs *FileStore) flush() error {
	raw, err := json.MarshalIndent(fs.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if fs.cipher != nil {
		raw, err = fs.cipher.seal(raw)
		if err != nil {
			return fmt.Errorf("failed to encrypt state: %w", err)
		}
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set state file mode: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
