package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceOpen indicates a device was unavailable or busy.
	ErrDeviceOpen = errors.New("failed to open audio device")

	// ErrStreamRead indicates an I/O failure while capturing.
	ErrStreamRead = errors.New("recording error")

	// ErrFileNotFound indicates the sound file does not exist on storage.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidFile indicates the file is not a PCM WAV we can play.
	ErrInvalidFile = errors.New("not a playable wav file")

	// ErrNoDevice indicates no suitable device was found.
	ErrNoDevice = errors.New("no audio device found")

	// ErrRecording is returned when starting while a recording is active.
	ErrRecording = errors.New("already recording")

	// ErrNotRecording is returned when stopping while idle.
	ErrNotRecording = errors.New("not recording")
)

// DeviceError wraps a platform failure to open or start a device.
// It matches ErrDeviceOpen with errors.Is.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("failed to %s %q: %v", e.Op, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	return []error{ErrDeviceOpen, e.Err}
}

// StreamReadError wraps a read failure that ended a capture early.
// It matches ErrStreamRead with errors.Is.
type StreamReadError struct {
	Err error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("recording error: %v", e.Err)
}

func (e *StreamReadError) Unwrap() []error {
	return []error{ErrStreamRead, e.Err}
}
