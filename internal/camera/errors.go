package camera

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied    = errors.New("camera permission denied")
	ErrNotSupported        = errors.New("media capture not supported on this platform")
	ErrNoDevicesFound      = errors.New("no cameras found")
	ErrInsufficientDevices = errors.New("only one camera available")
	ErrAcquisitionFailed   = errors.New("camera acquisition failed")
)

// AcquisitionError is returned when both the preferred and the plain
// constraint requests fail.
type AcquisitionError struct {
	DeviceID string
	Err      error // failure of the preferred request
	Fallback error // failure of the plain request
}

func (e *AcquisitionError) Error() string {
	msg := "could not access camera"
	if e.DeviceID != "" {
		msg += fmt.Sprintf(" %q", e.DeviceID)
	}
	return msg + ": " + e.Err.Error()
}

func (e *AcquisitionError) Unwrap() []error {
	errs := []error{ErrAcquisitionFailed, e.Err}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// Message returns an operator-facing message for a camera error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera permission denied. Allow camera access for this user and try again."
	case errors.Is(err, ErrNoDevicesFound):
		return "No cameras were found on this device."
	case errors.Is(err, ErrNotSupported):
		return "This platform does not support camera access."
	case errors.Is(err, ErrInsufficientDevices):
		return "Only one camera is available."
	default:
		return "Unknown error while accessing the camera."
	}
}
