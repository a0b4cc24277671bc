package tray

import (
	"testing"

	"github.com/petems/soundboard/internal/registry"
)

func TestSoundLabel(t *testing.T) {
	tests := []struct {
		name  string
		entry registry.Entry
		want  string
	}{
		{
			name:  "unbound",
			entry: registry.Entry{File: "/data/audio_files/abcDEF1234.wav"},
			want:  "abcDEF1234.wav",
		},
		{
			name:  "bound",
			entry: registry.Entry{File: "/data/a.wav", Hotkey: "Ctrl+F1"},
			want:  "a.wav  [Ctrl+F1]",
		},
		{
			name: "bound with output",
			entry: registry.Entry{
				File:   "/data/a.wav",
				Hotkey: "F2",
				Output: &registry.Output{Name: "Virtual Cable", Index: 3},
			},
			want: "a.wav  [F2]  → Virtual Cable",
		},
		{
			name:  "output only",
			entry: registry.Entry{File: "b.wav", Output: &registry.Output{Name: "Speakers"}},
			want:  "b.wav  → Speakers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := soundLabel(tt.entry); got != tt.want {
				t.Errorf("soundLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmojiForStatus(t *testing.T) {
	tests := map[string]string{
		"idle":      "🟢",
		"recording": "🔴",
		"error":     "⚪️",
		"whatever":  "🟢",
	}
	for status, want := range tests {
		if got := emojiForStatus(status); got != want {
			t.Errorf("emojiForStatus(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestStatusLines(t *testing.T) {
	if got := statusLine("recording"); got != "Status: Recording" {
		t.Errorf("unexpected recording line %q", got)
	}
	if got := statusLine("idle"); got != "Status: Ready" {
		t.Errorf("unexpected idle line %q", got)
	}
	if recordLabel(true) != "Stop Recording" || recordLabel(false) != "Start Recording" {
		t.Error("record labels do not follow state")
	}
	if deviceLabel("") != "default" || deviceLabel("Speakers") != "Speakers" {
		t.Error("unexpected device labels")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate kept %q", got)
	}
	if got := truncate("äöüäöüäöü", 4); got != "äöü…" {
		t.Errorf("truncate(runes) = %q", got)
	}
}

type fakeCheck struct{ checked bool }

func (f *fakeCheck) Check()   { f.checked = true }
func (f *fakeCheck) Uncheck() { f.checked = false }

func TestCheckOnlyFollowsSelection(t *testing.T) {
	items := map[string]*fakeCheck{
		"":              {},
		"Speakers":      {},
		"Virtual Cable": {checked: true},
	}

	// a refused change leaves the app on the old device
	checkOnly(items, "Speakers")
	for name, item := range items {
		if item.checked != (name == "Speakers") {
			t.Errorf("%q checked = %v", name, item.checked)
		}
	}

	checkOnly(items, "")
	if !items[""].checked || items["Speakers"].checked {
		t.Error("default was not selected")
	}

	// a configured device that is gone leaves nothing ticked
	checkOnly(items, "Headset")
	for name, item := range items {
		if item.checked {
			t.Errorf("%q still checked", name)
		}
	}
}
