package camera

import "context"

// Preferred capture parameters requested before falling back.
const (
	IdealWidth     = 1280
	IdealHeight    = 720
	IdealFrameRate = 30
)

// DeviceInfo is a raw entry reported by the platform's device enumeration.
type DeviceInfo struct {
	DeviceID string
	Label    string
	GroupID  string
	Kind     string
}

// VideoConstraints describes the requested video track. The zero value is
// the plain "any camera" request.
type VideoConstraints struct {
	// DeviceID requests an exact device match when non-empty.
	DeviceID string

	// Ideal values; the platform may pick something else.
	Width     int
	Height    int
	FrameRate int

	// FacingMode is "user", "environment", or "" for no preference.
	FacingMode string
}

// Constraints is the full media request passed to GetUserMedia.
type Constraints struct {
	Video VideoConstraints
	Audio bool
}

// Plain reports whether the constraints are the minimal boolean video request.
func (c Constraints) Plain() bool {
	return c.Video == VideoConstraints{}
}

// PlainConstraints returns the minimal request used for fallback and for
// unlocking device labels.
func PlainConstraints() Constraints {
	return Constraints{}
}

// ConstraintsFor builds the preferred constraints for a device. A nil device
// leaves the device and facing mode unset.
func ConstraintsFor(dev *CameraDevice) Constraints {
	c := Constraints{
		Video: VideoConstraints{
			Width:     IdealWidth,
			Height:    IdealHeight,
			FrameRate: IdealFrameRate,
		},
	}
	if dev != nil {
		c.Video.DeviceID = dev.ID
		c.Video.FacingMode = dev.FacingMode()
	}
	return c
}

// Track is a single media track of a live stream.
type Track interface {
	Stop()
}

// Stream is a live media stream handed out by the platform.
type Stream interface {
	ID() string
	Tracks() []Track
}

// MediaDevices is the platform media-capture API.
type MediaDevices interface {
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// stopStream stops every track of s. It tolerates a nil stream.
func stopStream(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
