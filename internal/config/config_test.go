package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "tileshot", "config.yaml"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerWritesDefaults(t *testing.T) {
	m := newTestManager(t)

	if _, err := os.Stat(m.GetConfigPath()); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 8080 || cfg.Preferences.Format != "png" || cfg.Preferences.Quality != 95 {
		t.Fatalf("defaults: got %+v", cfg)
	}
	if cfg.Capture.IntervalMs != 550 || cfg.Capture.DebugIntervalMs != 1000 {
		t.Fatalf("capture defaults: got %+v", cfg.Capture)
	}
	if cfg.HistoryPath != filepath.Join(m.GetConfigDir(), "history.db") {
		t.Fatalf("history path: got %s", cfg.HistoryPath)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "server_port: 9090\npreferences:\n  format: jpeg\n  quality: 70\n  sink: clipboard\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 9090 || cfg.Preferences.Format != "jpeg" || cfg.Preferences.Sink != "clipboard" {
		t.Fatalf("file values: got %+v", cfg)
	}
	if cfg.Browser.Viewport.Width != 1280 || cfg.LogLevel != "info" {
		t.Fatalf("defaults lost: got %+v", cfg)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("preferences:\n  quality: 400\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := NewManager(path); err == nil || !strings.Contains(err.Error(), "quality") {
		t.Fatalf("NewManager: got %v, want quality error", err)
	}
}

func TestSetPersists(t *testing.T) {
	m := newTestManager(t)

	if err := m.Set("preferences.quality", "80"); err != nil {
		t.Fatalf("Set quality: %v", err)
	}
	if err := m.Set("browser.headless", "false"); err != nil {
		t.Fatalf("Set headless: %v", err)
	}

	reloaded, err := NewManager(m.GetConfigPath())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.Preferences.Quality != 80 || cfg.Browser.Headless {
		t.Fatalf("reloaded: got quality=%d headless=%v", cfg.Preferences.Quality, cfg.Browser.Headless)
	}
}

func TestSetRejects(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		key   string
		value interface{}
	}{
		{"no_such_key", "x"},
		{"preferences", "x"},
		{"preferences.quality", "0"},
		{"preferences.sink", "printer"},
		{"capture.backend", "vnc"},
		{"capture.frame_format", "pdf"},
	}
	for _, tt := range tests {
		if err := m.Set(tt.key, tt.value); err == nil {
			t.Fatalf("Set(%s, %v) succeeded", tt.key, tt.value)
		}
	}
	if got := m.Get().Preferences.Quality; got != 95 {
		t.Fatalf("rejected Set changed quality to %d", got)
	}
}

func TestGetViperEnvOverride(t *testing.T) {
	m := newTestManager(t)
	t.Setenv("TILESHOT_SERVER_PORT", "7070")
	t.Setenv("TILESHOT_PREFERENCES_FORMAT", "tiff")

	v := m.GetViper()
	if got := v.GetInt("server_port"); got != 7070 {
		t.Fatalf("server_port: got %d, want 7070", got)
	}
	if got := v.GetString("preferences.format"); got != "tiff" {
		t.Fatalf("preferences.format: got %s, want tiff", got)
	}
	if m.Get().ServerPort != 8080 {
		t.Fatalf("env override leaked into the stored config")
	}
}

func TestSetPreferences(t *testing.T) {
	m := newTestManager(t)
	p := m.GetPreferences()
	p.Sink = "memory"
	p.Debug = true
	if err := m.SetPreferences(p); err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}
	if got := m.GetPreferences(); got != p {
		t.Fatalf("preferences: got %+v, want %+v", got, p)
	}

	p.Format = "gif"
	if err := m.SetPreferences(p); err == nil {
		t.Fatalf("unsupported format accepted")
	}
}
