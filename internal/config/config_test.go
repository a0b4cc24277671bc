package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	def := Default()
	if cfg.AudioDir != def.AudioDir || cfg.RegistryFile != def.RegistryFile {
		t.Errorf("expected default paths, got %s and %s", cfg.AudioDir, cfg.RegistryFile)
	}
	if cfg.RetriggerMS != 150 || !cfg.Notifications || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.File() != path {
		t.Errorf("expected file %s, got %s", path, cfg.File())
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
audio_dir = "/tmp/clips"
output_device = "Virtual Cable"
retrigger_ms = 300
notifications = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AudioDir != "/tmp/clips" {
		t.Errorf("audio_dir not read: %s", cfg.AudioDir)
	}
	if cfg.OutputDevice != "Virtual Cable" {
		t.Errorf("output_device not read: %s", cfg.OutputDevice)
	}
	if cfg.Retrigger() != 300*time.Millisecond {
		t.Errorf("expected 300ms retrigger, got %v", cfg.Retrigger())
	}
	if cfg.Notifications {
		t.Error("notifications should be disabled")
	}
	if cfg.RegistryFile != Default().RegistryFile {
		t.Errorf("unset key lost its default: %s", cfg.RegistryFile)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("audio_dir = [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.InputDevice = "USB Mic"
	cfg.RetriggerMS = 50
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save returned error: %v", err)
	}
	if got.InputDevice != "USB Mic" || got.RetriggerMS != 50 {
		t.Errorf("saved values not reloaded: %+v", got)
	}
}
