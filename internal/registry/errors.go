package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryNotFound indicates no entry has the given file path.
	ErrEntryNotFound = errors.New("sound not found")

	// ErrDuplicateEntry indicates an entry with the same file path already exists.
	ErrDuplicateEntry = errors.New("sound already registered")

	// ErrHotkeyConflict indicates the hotkey is already bound to a different entry.
	ErrHotkeyConflict = errors.New("hotkey already in use")

	// ErrDeleteDeclined indicates the user did not confirm a deletion.
	ErrDeleteDeclined = errors.New("delete not confirmed")
)

// HotkeyConflictError names the hotkey and the entry that already owns it.
// It matches ErrHotkeyConflict with errors.Is.
type HotkeyConflictError struct {
	Hotkey string
	Owner  string
}

func (e *HotkeyConflictError) Error() string {
	return fmt.Sprintf("the hotkey '%s' is already in use by %s", e.Hotkey, e.Owner)
}

func (e *HotkeyConflictError) Unwrap() error {
	return ErrHotkeyConflict
}
