package settings_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/euforicio/wikitikz/internal/settings"
)

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), nil)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := store.Get(); got != settings.Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	if err := os.WriteFile(path, []byte(`{"unrelated": 1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := settings.NewStore(path, nil)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !store.InvertColors() {
		t.Fatalf("expected absent field to keep its default")
	}

	if err := os.WriteFile(path, []byte(`{"invertColorsInDarkMode": false}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.InvertColors() {
		t.Fatalf("expected saved value to win over default")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := settings.NewStore(path, nil).Load(); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".wikitikz", "settings.json")
	store := settings.NewStore(path, nil)

	calls := 0
	store.OnChange(func(s settings.Settings) {
		calls++
		if s.InvertColorsInDarkMode {
			t.Errorf("hook saw stale value")
		}
	})

	if _, err := store.Update(func(s *settings.Settings) { s.InvertColorsInDarkMode = false }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one change notification, got %d", calls)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !strings.Contains(string(data), `"invertColorsInDarkMode": false`) {
		t.Fatalf("unexpected file contents %s", data)
	}

	if _, err := store.Update(func(s *settings.Settings) { s.InvertColorsInDarkMode = false }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no notification for an unchanged value, got %d", calls)
	}

	reloaded := settings.NewStore(path, nil)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.InvertColors() {
		t.Fatalf("expected persisted value after reload")
	}
}
