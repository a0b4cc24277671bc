//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "github.com/rs/zerolog"

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// RequestMicrophone triggers the system microphone permission dialog
func RequestMicrophone() {
	C.requestMicrophonePermission()
}

// EnsureMicrophone asks for microphone access when it has not been granted.
// Global hotkeys go through Carbon and need no accessibility grant.
func EnsureMicrophone(log zerolog.Logger) error {
	status := CheckMicrophone()
	if status == PermissionAuthorized {
		return nil
	}

	log.Warn().Int("status", status).Msg("Microphone permission required")
	if status == PermissionNotDetermined {
		RequestMicrophone()
	} else {
		log.Warn().Msg("Enable it in System Settings → Privacy & Security → Microphone")
	}
	return ErrMicrophoneDenied
}
