// Package notify shows messages and asks for confirmation.
package notify

import (
	"errors"
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog"
)

// Desktop uses system notifications and native dialogs
type Desktop struct {
	appName string
	enabled bool
	log     zerolog.Logger
}

// NewDesktop returns a desktop notifier. When enabled is false Notify only
// logs.
func NewDesktop(appName string, enabled bool, log zerolog.Logger) *Desktop {
	return &Desktop{appName: appName, enabled: enabled, log: log}
}

func (d *Desktop) Notify(title, message string) error {
	d.log.Info().Str("title", title).Msg(message)
	if !d.enabled {
		return nil
	}
	if err := beeep.Notify(d.appName+": "+title, message, ""); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// Confirm shows a yes/no dialog. Closing the dialog counts as no.
func (d *Desktop) Confirm(title, message string) (bool, error) {
	err := zenity.Question(message,
		zenity.Title(title),
		zenity.OKLabel("Delete"),
		zenity.CancelLabel("Cancel"),
		zenity.WarningIcon)
	if errors.Is(err, zenity.ErrCanceled) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to show dialog: %w", err)
	}
	return true, nil
}
