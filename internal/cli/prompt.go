package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fpang/dni-capture/internal/camera"
	"github.com/rs/zerolog/log"
)

// FindCamera picks a device by ID, 1-based index, device type, or a
// case-insensitive label substring, checked in that order.
func FindCamera(devices []camera.CameraDevice, query string) (camera.CameraDevice, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return camera.CameraDevice{}, fmt.Errorf("empty camera selector")
	}

	for _, d := range devices {
		if d.ID == query {
			return d, nil
		}
	}
	if n, err := strconv.Atoi(query); err == nil {
		if n >= 1 && n <= len(devices) {
			return devices[n-1], nil
		}
		return camera.CameraDevice{}, fmt.Errorf("camera index %d out of range (1-%d)", n, len(devices))
	}
	for _, d := range devices {
		if string(d.Type) == strings.ToLower(query) {
			return d, nil
		}
	}
	lower := strings.ToLower(query)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Label), lower) {
			return d, nil
		}
	}
	return camera.CameraDevice{}, fmt.Errorf("no camera matches %q", query)
}

// PromptForCamera lists devices on out and reads a selection from in.
// An empty answer selects the first device.
func PromptForCamera(devices []camera.CameraDevice, in io.Reader, out io.Writer) (camera.CameraDevice, error) {
	if len(devices) == 0 {
		return camera.CameraDevice{}, camera.ErrNoDevicesFound
	}
	if len(devices) == 1 {
		return devices[0], nil
	}

	for i, d := range devices {
		fmt.Fprintf(out, "  %d) %s [%s]\n", i+1, d.DisplayName(i), d.Type)
	}
	fmt.Fprintf(out, "Camera [1]: ")

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read input, using first camera")
		return devices[0], nil
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return devices[0], nil
	}
	return FindCamera(devices, input)
}
