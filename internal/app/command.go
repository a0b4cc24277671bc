package app

import "errors"

// ErrStopped is returned by Do once Run has returned
var ErrStopped = errors.New("app stopped")

// Kind selects the operation a Command performs
type Kind int

const (
	StartRecording Kind = iota
	StopRecording
	ToggleRecording
	Play             // File
	Trigger          // Hotkey
	Bind             // File, Hotkey ("" unbinds)
	CaptureBind      // File
	SetOutput        // File, Device ("" = default)
	Delete           // File
	SetInput         // Device ("" = default)
	SetDefaultOutput // Device ("" = default)
	Reload
)

var kindNames = [...]string{
	StartRecording:   "start-recording",
	StopRecording:    "stop-recording",
	ToggleRecording:  "toggle-recording",
	Play:             "play",
	Trigger:          "trigger",
	Bind:             "bind",
	CaptureBind:      "capture-bind",
	SetOutput:        "set-output",
	Delete:           "delete",
	SetInput:         "set-input",
	SetDefaultOutput: "set-default-output",
	Reload:           "reload",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// title heads error notifications
func (k Kind) title() string {
	switch k {
	case StartRecording, StopRecording, ToggleRecording:
		return "Recording failed"
	case Play, Trigger:
		return "Playback failed"
	case Bind, CaptureBind:
		return "Binding failed"
	case SetOutput, SetInput, SetDefaultOutput:
		return "Device change failed"
	case Delete:
		return "Delete failed"
	case Reload:
		return "Reload failed"
	}
	return "Error"
}

// Command is one request to the dispatcher
type Command struct {
	Kind   Kind
	File   string
	Hotkey string
	Device string

	result chan error
}
