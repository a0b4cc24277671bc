package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "soundboard.log")

	logger := build(&console, path)
	logger.Info().Str("file", "abc.wav").Msg("Recording saved")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"message":"Recording saved"`) {
		t.Errorf("unexpected file content %q", data)
	}
	if !strings.Contains(console.String(), "Recording saved") {
		t.Errorf("unexpected console content %q", console.String())
	}
}

func TestBuildFallsBackToConsole(t *testing.T) {
	var console bytes.Buffer
	dir := t.TempDir()
	// a directory cannot be opened as the log file
	logger := build(&console, dir)
	logger.Info().Msg("still logging")

	if !strings.Contains(console.String(), "Failed to open log file") {
		t.Errorf("expected fallback warning, got %q", console.String())
	}
	if !strings.Contains(console.String(), "still logging") {
		t.Errorf("expected console output, got %q", console.String())
	}
}
