package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ErrInvalidKey is returned when a settings key contains invalid characters.
var ErrInvalidKey = errors.New("invalid settings key")

// ValidateKey checks that a settings key contains only letters, digits,
// dots, underscores, and hyphens. This protects against typos and malformed
// keys.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// Store persists small runtime settings (operator overrides, per-book
// honorific additions) to a YAML file beside the main config. Reads load
// fresh from disk each time; the file is the source of truth.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a settings store at path. The file is created on first
// Set.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Get returns one settings value. The second return is false when the key
// is absent.
func (s *Store) Get(key string) (any, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.read()
	if err != nil {
		return nil, false, err
	}
	v, ok := settings[key]
	return v, ok, nil
}

// Set creates or updates a settings value.
func (s *Store) Set(key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.read()
	if err != nil {
		return err
	}
	settings[key] = value
	return s.write(settings)
}

// Delete removes a settings value. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := settings[key]; !ok {
		return nil
	}
	delete(settings, key)
	return s.write(settings)
}

// All returns every stored setting.
func (s *Store) All() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// read must be called with the lock held.
func (s *Store) read() (map[string]any, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	settings := map[string]any{}
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

// write must be called with the lock held. The file is replaced via a temp
// file so a crash mid-write never truncates settings.
func (s *Store) write(settings map[string]any) error {
	raw, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
