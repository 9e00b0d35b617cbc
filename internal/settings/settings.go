// Package settings persists the user-adjustable render options as a small
// JSON record merged over defaults.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Settings is the persisted record.
type Settings struct {
	InvertColorsInDarkMode bool `json:"invertColorsInDarkMode"`
}

// Defaults returns the settings used when nothing has been saved yet.
func Defaults() Settings {
	return Settings{InvertColorsInDarkMode: true}
}

// Store loads and saves Settings at a fixed path.
type Store struct {
	logger   *slog.Logger
	path     string
	onChange []func(Settings)
	current  Settings
	mu       sync.RWMutex
}

// NewStore returns a store backed by path holding the defaults. Call Load to
// read what was saved.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:    path,
		logger:  logger.With("component", "settings"),
		current: Defaults(),
	}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the backing file. Fields absent from the file keep their
// default value; a missing file is not an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("no saved settings", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	loaded := Defaults()
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("decode settings %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// InvertColors reports the dark-mode inversion flag.
func (s *Store) InvertColors() bool {
	return s.Get().InvertColorsInDarkMode
}

// OnChange registers fn to run after every successful Update.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Update applies mutate to the current settings, saves the result and
// notifies change hooks when the value actually changed.
func (s *Store) Update(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	next := s.current
	mutate(&next)
	if next == s.current {
		s.mu.Unlock()
		return next, nil
	}
	if err := save(s.path, next); err != nil {
		s.mu.Unlock()
		return s.Get(), err
	}
	s.current = next
	hooks := append([]func(Settings){}, s.onChange...)
	s.mu.Unlock()

	s.logger.Info("settings updated", slog.Bool("invertColorsInDarkMode", next.InvertColorsInDarkMode))
	for _, fn := range hooks {
		fn(next)
	}
	return next, nil
}

func save(path string, v Settings) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".settings-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	keep = true
	return nil
}
