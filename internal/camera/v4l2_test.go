package camera

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func newPipeStream(width, height int) *v4l2Stream {
	return &v4l2Stream{
		id:     "test-stream",
		device: "/dev/video9",
		width:  width,
		height: height,
		frame:  image.NewRGBA(image.Rect(0, 0, width, height)),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func TestV4L2StreamFrames(t *testing.T) {
	s := newPipeStream(2, 1)
	pr, pw := io.Pipe()
	go s.readFrames(pr)
	defer pw.Close()

	if s.VideoWidth() != 0 || s.VideoHeight() != 0 {
		t.Errorf("expected zero size before first frame, got %dx%d", s.VideoWidth(), s.VideoHeight())
	}
	if _, err := s.CurrentFrame(); err == nil {
		t.Error("expected error before first frame")
	}

	frame := []byte{1, 2, 3, 255, 4, 5, 6, 255}
	if _, err := pw.Write(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.VideoWidth() != 2 || s.VideoHeight() != 1 {
		t.Errorf("size = %dx%d, want 2x1", s.VideoWidth(), s.VideoHeight())
	}

	img, err := s.CurrentFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rgba := img.(*image.RGBA)
	if !reflect.DeepEqual(rgba.Pix, frame) {
		t.Errorf("pixels = %v, want %v", rgba.Pix, frame)
	}

	// The returned image is a copy.
	rgba.Pix[0] = 99
	again, _ := s.CurrentFrame()
	if again.(*image.RGBA).Pix[0] != 1 {
		t.Error("mutating a returned frame changed the stream's frame")
	}
}

func TestV4L2WaitReadyReturnsWhenCaptureEnds(t *testing.T) {
	s := newPipeStream(2, 1)
	pr, pw := io.Pipe()
	go s.readFrames(pr)
	pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := s.WaitReady(ctx)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("WaitReady took %v after the capture ended", elapsed)
	}
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if !strings.Contains(err.Error(), "/dev/video9 ended") {
		t.Errorf("unexpected message: %v", err)
	}
	if s.VideoWidth() != 0 {
		t.Error("stream that never produced a frame should report zero width")
	}
}

func TestV4L2WaitReadyHonorsContext(t *testing.T) {
	s := newPipeStream(2, 1)
	pr, pw := io.Pipe()
	go s.readFrames(pr)
	defer pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestV4L2StopIsIdempotent(t *testing.T) {
	s := newPipeStream(1, 1)
	calls := 0
	s.cancel = func() { calls++ }

	track := s.Tracks()[0]
	track.Stop()
	track.Stop()
	if calls != 1 {
		t.Errorf("cancel called %d times, want 1", calls)
	}
}

func TestInputArgs(t *testing.T) {
	tests := []struct {
		name string
		vc   VideoConstraints
		want []string
	}{
		{
			name: "plain",
			vc:   VideoConstraints{},
			want: []string{"-f", "v4l2", "-i", "/dev/video0"},
		},
		{
			name: "preferred",
			vc:   VideoConstraints{Width: 1280, Height: 720, FrameRate: 30},
			want: []string{"-f", "v4l2", "-video_size", "1280x720", "-framerate", "30", "-i", "/dev/video0"},
		},
		{
			name: "width without height",
			vc:   VideoConstraints{Width: 1280, FrameRate: 15},
			want: []string{"-f", "v4l2", "-framerate", "15", "-i", "/dev/video0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inputArgs("/dev/video0", tt.vc)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("inputArgs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveDevice(t *testing.T) {
	root := t.TempDir()
	for name, label := range map[string]string{"video0": "Front Camera", "video1": "Back Camera", "video2": "USB Capture"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "name"), []byte(label), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	v := &V4L2Devices{SysfsRoot: root, DevRoot: "/dev"}

	tests := []struct {
		name string
		vc   VideoConstraints
		want string
	}{
		{"exact id", VideoConstraints{DeviceID: "/dev/video7", FacingMode: "user"}, "/dev/video7"},
		{"environment", VideoConstraints{FacingMode: "environment"}, "/dev/video1"},
		{"user", VideoConstraints{FacingMode: "user"}, "/dev/video0"},
		{"no preference", VideoConstraints{}, "/dev/video0"},
		{"unmatched facing", VideoConstraints{FacingMode: "sideways"}, "/dev/video0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.resolveDevice(context.Background(), tt.vc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveDevice = %s, want %s", got, tt.want)
			}
		})
	}

	empty := &V4L2Devices{SysfsRoot: t.TempDir(), DevRoot: "/dev"}
	if _, err := empty.resolveDevice(context.Background(), VideoConstraints{}); !errors.Is(err, ErrNoDevicesFound) {
		t.Errorf("expected ErrNoDevicesFound, got %v", err)
	}
}
