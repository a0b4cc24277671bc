package notify

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsoleConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  y  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
		{"y", true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		c := NewConsole(strings.NewReader(tt.input), &out)

		got, err := c.Confirm("Delete", "Delete clip.wav?")
		if err != nil {
			t.Fatalf("Confirm(%q) returned error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Delete clip.wav? [y/N]") {
			t.Errorf("unexpected prompt %q", out.String())
		}
	}
}

func TestConsoleNotify(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(""), &out)

	if err := c.Notify("Recording", "saved abc.wav"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "Recording: saved abc.wav\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}
