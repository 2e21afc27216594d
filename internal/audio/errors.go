package audio

import "errors"

var (
	// ErrPermissionDenied indicates the capture device is unavailable or not accessible.
	ErrPermissionDenied = errors.New("capture device unavailable")

	// ErrAlreadyActive indicates a session is already running.
	ErrAlreadyActive = errors.New("recording session already active")

	// ErrInvalidTransition indicates a call that is not legal in the current state.
	ErrInvalidTransition = errors.New("invalid recorder state transition")

	// ErrNotCapturing indicates the capturer has no running process.
	ErrNotCapturing = errors.New("no capture in progress")
)
