//go:build !linux && !darwin && !windows

package hotkey

// New reports that global hotkeys are unavailable
func New() (Manager, error) {
	return nil, ErrUnsupported
}
