package camera

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ListCameras enumerates the video inputs exposed by media and classifies
// each one by its label.
//
// Some platforms redact labels until camera access has been granted, so a
// transient plain stream is opened first and always stopped before
// returning.
func ListCameras(ctx context.Context, media MediaDevices) ([]CameraDevice, error) {
	if media == nil {
		return nil, ErrNotSupported
	}

	tmp, err := media.GetUserMedia(ctx, PlainConstraints())
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNotSupported) {
			return nil, err
		}
		log.Warn().Err(err).Msg("Transient camera stream failed, labels may be redacted")
	}
	defer stopStream(tmp)

	infos, err := media.EnumerateDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	var devices []CameraDevice
	for _, info := range infos {
		if info.Kind != KindVideoInput {
			continue
		}
		devices = append(devices, CameraDevice{
			ID:      info.DeviceID,
			Label:   info.Label,
			GroupID: info.GroupID,
			Type:    Classify(info.Label),
		})
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}

	log.Debug().Int("count", len(devices)).Msg("Cameras enumerated")
	return devices, nil
}
