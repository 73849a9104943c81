package peerbonus

import "errors"

var (
	// ErrAuthentication is returned when the Auth API rejects login credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRegistration is returned when registration data is rejected locally or by the Auth API.
	ErrRegistration = errors.New("registration failed")
	// ErrProfileResolution is returned when a token cannot be resolved to a profile.
	ErrProfileResolution = errors.New("profile resolution failed")
	// ErrStorageUnavailable is returned when persistent session storage fails.
	ErrStorageUnavailable = errors.New("session storage unavailable")
	// ErrOperationInFlight is returned when another login or register is running.
	ErrOperationInFlight = errors.New("session operation already in flight")
	// ErrSessionSuperseded is returned by an operation overtaken by Logout.
	ErrSessionSuperseded = errors.New("session superseded by logout")
	// ErrNotReady is returned before hydration has completed.
	ErrNotReady = errors.New("session manager not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager closed")
	// ErrInvalidRequest is returned for locally invalid input.
	ErrInvalidRequest = errors.New("invalid request")
)
