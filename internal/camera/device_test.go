package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		label string
		want  DeviceType
	}{
		{"Front Camera", TypeFront},
		{"camera2 1, facing FRONT", TypeFront},
		{"User Facing", TypeFront},
		{"Back Camera", TypeBack},
		{"camera 0, facing ENVIRONMENT", TypeBack},
		{"Integrated Webcam", TypeIntegrated},
		{"HD WEBCAM C270", TypeIntegrated},
		{"Integrated Camera", TypeIntegrated},
		{"Logitech BRIO", TypeExternal},
		{"USB2.0 Capture", TypeExternal},
		{"", TypeUnknown},
		// priority: front wins over back and webcam
		{"front/back webcam", TypeFront},
		{"back webcam", TypeBack},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := Classify(tt.label); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	if got := (CameraDevice{Label: "Front"}).DisplayName(0); got != "Front" {
		t.Errorf("DisplayName() = %q, want Front", got)
	}
	if got := (CameraDevice{}).DisplayName(1); got != "Camera 2" {
		t.Errorf("DisplayName() = %q, want Camera 2", got)
	}
}

func TestConstraintsFor(t *testing.T) {
	c := ConstraintsFor(&CameraDevice{ID: "b", Type: TypeBack})
	if c.Video.DeviceID != "b" || c.Video.FacingMode != "environment" {
		t.Errorf("unexpected video constraints: %+v", c.Video)
	}
	if c.Video.Width != 1280 || c.Video.Height != 720 || c.Video.FrameRate != 30 {
		t.Errorf("unexpected ideal values: %+v", c.Video)
	}
	if c.Audio {
		t.Error("audio should not be requested")
	}

	c = ConstraintsFor(&CameraDevice{ID: "x", Type: TypeExternal})
	if c.Video.FacingMode != "" {
		t.Errorf("expected no facing mode for external camera, got %q", c.Video.FacingMode)
	}

	c = ConstraintsFor(nil)
	if c.Video.DeviceID != "" || c.Plain() {
		t.Errorf("nil device should keep ideal values without device id: %+v", c)
	}
	if !PlainConstraints().Plain() {
		t.Error("PlainConstraints().Plain() = false")
	}
}

func TestListCameras(t *testing.T) {
	media := &fakeMedia{devices: append(threeDevices(),
		DeviceInfo{DeviceID: "mic", Label: "Microphone", Kind: "audioinput"},
		DeviceInfo{DeviceID: "d", Label: "", Kind: KindVideoInput},
	)}

	devices, err := ListCameras(context.Background(), media)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devices) != 4 {
		t.Fatalf("expected 4 video inputs, got %d", len(devices))
	}
	wantTypes := []DeviceType{TypeFront, TypeBack, TypeExternal, TypeUnknown}
	for i, d := range devices {
		if d.Type != wantTypes[i] {
			t.Errorf("device %d type = %q, want %q", i, d.Type, wantTypes[i])
		}
	}
	if media.live() != 0 {
		t.Errorf("transient stream left running: %d live", media.live())
	}
	if !media.requests[0].Plain() {
		t.Error("transient request should use plain constraints")
	}
}

func TestListCamerasReleasesTransientStreamOnError(t *testing.T) {
	media := &fakeMedia{enumErr: errors.New("boom")}

	if _, err := ListCameras(context.Background(), media); err == nil {
		t.Fatal("expected error")
	}
	if len(media.streams) != 1 || !media.streams[0].stopped {
		t.Error("transient stream was not stopped")
	}
}

func TestListCamerasErrors(t *testing.T) {
	if _, err := ListCameras(context.Background(), nil); !errors.Is(err, ErrNotSupported) {
		t.Errorf("nil media: expected ErrNotSupported, got %v", err)
	}

	denied := &fakeMedia{
		devices: threeDevices(),
		fail:    func(Constraints) error { return ErrPermissionDenied },
	}
	if _, err := ListCameras(context.Background(), denied); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}

	empty := &fakeMedia{devices: []DeviceInfo{{DeviceID: "mic", Kind: "audioinput"}}}
	if _, err := ListCameras(context.Background(), empty); !errors.Is(err, ErrNoDevicesFound) {
		t.Errorf("expected ErrNoDevicesFound, got %v", err)
	}

	// Unrelated transient failures do not stop enumeration.
	flaky := &fakeMedia{
		devices: threeDevices(),
		fail:    func(Constraints) error { return errors.New("device busy") },
	}
	devices, err := ListCameras(context.Background(), flaky)
	if err != nil || len(devices) != 3 {
		t.Errorf("expected 3 devices despite transient failure, got %d (%v)", len(devices), err)
	}
}

func TestV4L2EnumerateDevices(t *testing.T) {
	root := t.TempDir()
	for name, label := range map[string]string{"video0": "Integrated Camera\n", "video10": "USB Capture", "video2": "Integrated Camera: IR"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "name"), []byte(label), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "v4l-subdev0"), 0o755); err != nil {
		t.Fatal(err)
	}

	v := &V4L2Devices{SysfsRoot: root, DevRoot: "/dev"}
	infos, err := v.EnumerateDevices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"/dev/video0", "/dev/video2", "/dev/video10"}
	if len(infos) != len(want) {
		t.Fatalf("expected %d devices, got %d", len(want), len(infos))
	}
	for i, info := range infos {
		if info.DeviceID != want[i] {
			t.Errorf("device %d = %s, want %s", i, info.DeviceID, want[i])
		}
		if info.Kind != KindVideoInput {
			t.Errorf("device %d kind = %s", i, info.Kind)
		}
	}
	if infos[0].Label != "Integrated Camera" {
		t.Errorf("label not trimmed: %q", infos[0].Label)
	}
}

func TestV4L2MissingSysfs(t *testing.T) {
	v := &V4L2Devices{SysfsRoot: filepath.Join(t.TempDir(), "missing"), DevRoot: "/dev"}
	if _, err := v.EnumerateDevices(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}
