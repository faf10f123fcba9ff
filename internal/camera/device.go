// Package camera discovers local video-capture devices and manages the
// lifecycle of a single live stream per Manager.
//
// The platform is reached only through the MediaDevices interface, so the
// same enumeration, constraint negotiation and fallback logic runs against
// the Linux V4L2 backend and against test fakes.
package camera

import (
	"fmt"
	"strings"
)

// DeviceType classifies a camera by where it faces or how it is attached.
type DeviceType string

const (
	TypeFront      DeviceType = "front"
	TypeBack       DeviceType = "back"
	TypeIntegrated DeviceType = "integrated"
	TypeExternal   DeviceType = "external"
	TypeUnknown    DeviceType = "unknown"
)

// KindVideoInput is the DeviceInfo.Kind reported for video-capture devices.
const KindVideoInput = "videoinput"

// CameraDevice is one enumerated video input. Values are immutable; a new
// enumeration produces a new slice.
type CameraDevice struct {
	ID      string     `json:"id"`
	Label   string     `json:"label"`
	GroupID string     `json:"groupId"`
	Type    DeviceType `json:"type"`
}

// DisplayName returns the label, or "Camera N" (1-based) when the platform
// redacted it.
func (d CameraDevice) DisplayName(index int) string {
	if d.Label != "" {
		return d.Label
	}
	return fmt.Sprintf("Camera %d", index+1)
}

// FacingMode returns the facing-mode hint for the device type, or "" when
// the type carries no facing information.
func (d CameraDevice) FacingMode() string {
	switch d.Type {
	case TypeFront:
		return "user"
	case TypeBack:
		return "environment"
	default:
		return ""
	}
}

// Classify derives a DeviceType from a human-readable device label.
// Matching is case-insensitive and checked in priority order.
func Classify(label string) DeviceType {
	if label == "" {
		return TypeUnknown
	}

	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "front") || strings.Contains(lower, "user"):
		return TypeFront
	case strings.Contains(lower, "back") || strings.Contains(lower, "environment"):
		return TypeBack
	case strings.Contains(lower, "webcam") || strings.Contains(lower, "integrated"):
		return TypeIntegrated
	default:
		return TypeExternal
	}
}
