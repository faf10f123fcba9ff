package camera

// v4l2.go implements MediaDevices for Linux Video4Linux2 devices. Devices
// are discovered through sysfs; live streams are produced by an ffmpeg
// subprocess that writes raw RGBA frames to a pipe.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultSysfsRoot = "/sys/class/video4linux"
	defaultDevRoot   = "/dev"
)

// V4L2Devices is the Linux platform media API.
type V4L2Devices struct {
	SysfsRoot string
	DevRoot   string
}

// Compile-time interface check.
var _ MediaDevices = (*V4L2Devices)(nil)

// NewV4L2Devices returns a backend reading the standard sysfs and /dev paths.
func NewV4L2Devices() *V4L2Devices {
	return &V4L2Devices{SysfsRoot: defaultSysfsRoot, DevRoot: defaultDevRoot}
}

// EnumerateDevices lists /sys/class/video4linux/video* nodes in index order.
func (v *V4L2Devices) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(v.SysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s not present", ErrNotSupported, v.SysfsRoot)
		}
		return nil, fmt.Errorf("read %s: %w", v.SysfsRoot, err)
	}

	var nodes []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "video") {
			nodes = append(nodes, e.Name())
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodeIndex(nodes[i]) < nodeIndex(nodes[j])
	})

	infos := make([]DeviceInfo, 0, len(nodes))
	for _, node := range nodes {
		dir := filepath.Join(v.SysfsRoot, node)
		label := ""
		if b, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
			label = strings.TrimSpace(string(b))
		}
		group := ""
		if target, err := filepath.EvalSymlinks(filepath.Join(dir, "device")); err == nil {
			group = filepath.Base(target)
		}
		infos = append(infos, DeviceInfo{
			DeviceID: filepath.Join(v.DevRoot, node),
			Label:    label,
			GroupID:  group,
			Kind:     KindVideoInput,
		})
	}

	log.Debug().Int("count", len(infos)).Str("root", v.SysfsRoot).Msg("V4L2 devices enumerated")
	return infos, nil
}

func nodeIndex(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
	if err != nil {
		return 1 << 30
	}
	return n
}

// GetUserMedia starts an ffmpeg capture of the requested device. The
// returned stream reports zero dimensions until its first frame arrives.
func (v *V4L2Devices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found", ErrNotSupported)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe not found", ErrNotSupported)
	}

	device, err := v.resolveDevice(ctx, c.Video)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, device)
		}
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	f.Close()

	input := inputArgs(device, c.Video)
	width, height, err := probeSize(ctx, ffprobePath, input)
	if err != nil {
		return nil, err
	}

	return startStream(ffmpegPath, device, input, width, height)
}

// resolveDevice picks the exact device, a device matching the facing mode,
// or the first device, in that order.
func (v *V4L2Devices) resolveDevice(ctx context.Context, vc VideoConstraints) (string, error) {
	if vc.DeviceID != "" {
		return vc.DeviceID, nil
	}

	infos, err := v.EnumerateDevices(ctx)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", ErrNoDevicesFound
	}

	if vc.FacingMode != "" {
		for _, info := range infos {
			dev := CameraDevice{Type: Classify(info.Label)}
			if dev.FacingMode() == vc.FacingMode {
				return info.DeviceID, nil
			}
		}
	}
	return infos[0].DeviceID, nil
}

func inputArgs(device string, vc VideoConstraints) []string {
	args := []string{"-f", "v4l2"}
	if vc.Width > 0 && vc.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", vc.Width, vc.Height))
	}
	if vc.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(vc.FrameRate))
	}
	return append(args, "-i", device)
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

// probeSize asks ffprobe for the negotiated frame size of the input.
func probeSize(ctx context.Context, ffprobePath string, input []string) (int, int, error) {
	args := append([]string{"-v", "error"}, input...)
	args = append(args, "-select_streams", "v:0", "-show_entries", "stream=width,height", "-of", "json")

	out, err := exec.CommandContext(ctx, ffprobePath, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return 0, 0, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return 0, 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 || probe.Streams[0].Width <= 0 || probe.Streams[0].Height <= 0 {
		return 0, 0, errors.New("ffprobe reported no video stream")
	}
	return probe.Streams[0].Width, probe.Streams[0].Height, nil
}

// v4l2Stream keeps the latest frame produced by a running ffmpeg process.
type v4l2Stream struct {
	id     string
	device string
	width  int
	height int

	cmd    *exec.Cmd
	cancel context.CancelFunc

	mu      sync.Mutex
	frame   *image.RGBA
	readErr error

	ready    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startStream(ffmpegPath, device string, input []string, width, height int) (*v4l2Stream, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	args := append([]string{"-loglevel", "error"}, input...)
	args = append(args, "-f", "rawvideo", "-pix_fmt", "rgba", "-")
	cmd := exec.CommandContext(streamCtx, ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	s := &v4l2Stream{
		id:     uuid.NewString(),
		device: device,
		width:  width,
		height: height,
		cmd:    cmd,
		cancel: cancel,
		frame:  image.NewRGBA(image.Rect(0, 0, width, height)),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readFrames(stdout)

	log.Debug().
		Str("stream", s.id).
		Str("device", device).
		Int("width", width).
		Int("height", height).
		Msg("ffmpeg capture started")
	return s, nil
}

// readFrames copies whole RGBA frames from r until it fails. done is closed
// once the reader stops.
func (s *v4l2Stream) readFrames(r io.Reader) {
	defer close(s.done)
	var once sync.Once
	scratch := make([]byte, s.width*s.height*4)
	for {
		if _, err := io.ReadFull(r, scratch); err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		copy(s.frame.Pix, scratch)
		s.mu.Unlock()
		once.Do(func() { close(s.ready) })
	}
}

func (s *v4l2Stream) ID() string { return s.id }

func (s *v4l2Stream) Tracks() []Track { return []Track{videoTrack{s}} }

// VideoWidth is zero until the first frame has been received.
func (s *v4l2Stream) VideoWidth() int {
	if !s.isReady() {
		return 0
	}
	return s.width
}

// VideoHeight is zero until the first frame has been received.
func (s *v4l2Stream) VideoHeight() int {
	if !s.isReady() {
		return 0
	}
	return s.height
}

// CurrentFrame returns a copy of the latest frame.
func (s *v4l2Stream) CurrentFrame() (image.Image, error) {
	if !s.isReady() {
		return nil, errors.New("no frame received yet")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.frame.Rect)
	copy(out.Pix, s.frame.Pix)
	return out, nil
}

// WaitReady blocks until the first frame arrives or the capture ends. It
// gives up when ctx is done.
func (s *v4l2Stream) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		// A frame may have landed just before the reader stopped.
		if s.isReady() {
			return nil
		}
		s.mu.Lock()
		readErr := s.readErr
		s.mu.Unlock()
		return fmt.Errorf("capture on %s ended: %w", s.device, readErr)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *v4l2Stream) isReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *v4l2Stream) stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.cmd == nil {
			return
		}
		if err := s.cmd.Wait(); err != nil {
			log.Debug().Err(err).Str("stream", s.id).Msg("ffmpeg exited")
		}
	})
}

type videoTrack struct{ s *v4l2Stream }

func (t videoTrack) Stop() { t.s.stop() }
