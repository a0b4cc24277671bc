// Package permissions checks the OS privacy permissions recording needs.
package permissions

import "errors"

// ErrMicrophoneDenied is returned when the user has not allowed microphone access
var ErrMicrophoneDenied = errors.New("microphone permission not granted")
