package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrEncoderFailure    = errors.New("encoder failure")
	ErrSinkFailure       = errors.New("sink failure")
	ErrInvalidTransition = errors.New("invalid transition")
)
