package chat

import "errors"

var (
	// ErrDeviceUnavailable covers denied permission and missing hardware.
	ErrDeviceUnavailable = errors.New("microphone unavailable")
	ErrRecordingActive   = errors.New("recording already in progress")
)
