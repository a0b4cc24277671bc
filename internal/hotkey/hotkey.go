// Package hotkey registers system-wide hotkeys.
package hotkey

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported is returned on platforms without a global hotkey API
	ErrUnsupported = errors.New("global hotkeys are not supported on this platform")

	// ErrRegistered is returned when the accelerator is already registered
	ErrRegistered = errors.New("hotkey already registered")

	// ErrGrabFailed is returned when another program owns the key combination
	ErrGrabFailed = errors.New("hotkey is in use by another program")

	// ErrCaptureCanceled is returned by Capture when Escape is pressed
	ErrCaptureCanceled = errors.New("key capture canceled")

	// ErrCaptureActive is returned by Capture while another capture runs
	ErrCaptureActive = errors.New("key capture already in progress")
)

// Manager defines the interface for global hotkey management. Accelerators
// use the canonical form from package keys, e.g. "Ctrl+Shift+F1".
type Manager interface {
	Register(accel string, callback func()) error
	Unregister(accel string) error
	Close() error
}

// Capturer grabs the keyboard until one non-modifier key is pressed and
// returns it as a canonical accelerator.
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

type captureReq struct {
	result chan captureResult
}

type captureResult struct {
	accel string
	err   error
}
