package session

import "errors"

var (
	// ErrSessionNotReady is returned when an operation requires a ready
	// session and the controller is closing or already closed.
	ErrSessionNotReady = errors.New("session not ready")

	// ErrSessionActive is returned when Open is called on a controller
	// that already holds the sensor.
	ErrSessionActive = errors.New("session already active")

	// ErrHardwareRejected reports that the driver refused a control set.
	// The driver detail is wrapped.
	ErrHardwareRejected = errors.New("hardware rejected controls")

	// ErrCaptureFailed reports that a still grab failed at the driver.
	ErrCaptureFailed = errors.New("still capture failed")

	// ErrCCMWaitTimeout reports that no live color matrix arrived within
	// the configured pre-capture wait.
	ErrCCMWaitTimeout = errors.New("timed out waiting for live ccm")
)
