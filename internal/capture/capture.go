// Package capture turns the current frame of a live video source into an
// encoded still image.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is the JPEG quality used for captured frames (0.85).
const DefaultJPEGQuality = 85

// ErrSourceNotReady is returned when the frame source has no intrinsic size yet.
var ErrSourceNotReady = errors.New("video source is not ready")

// FrameSource is anything that can report its native size and hand out the
// frame currently on screen.
type FrameSource interface {
	VideoWidth() int
	VideoHeight() int
	CurrentFrame() (image.Image, error)
}

// CapturedImage is an encoded still. Treat it as immutable.
type CapturedImage struct {
	DataURI   string    `json:"dataUri"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Timestamp time.Time `json:"timestamp"`
}

// Engine captures frames with a fixed JPEG quality.
type Engine struct {
	Quality int
	Now     func() time.Time
}

// NewEngine returns an Engine using DefaultJPEGQuality and the wall clock.
func NewEngine() *Engine {
	return &Engine{Quality: DefaultJPEGQuality, Now: time.Now}
}

var defaultEngine = NewEngine()

// Capture captures src with the default engine.
func Capture(src FrameSource) (*CapturedImage, error) {
	return defaultEngine.Capture(src)
}

// Capture renders the current frame of src into a buffer of the source's
// native size and encodes it as a JPEG data URI. Errors are returned as-is;
// there is no retry.
func (e *Engine) Capture(src FrameSource) (*CapturedImage, error) {
	if src == nil {
		return nil, ErrSourceNotReady
	}
	width, height := src.VideoWidth(), src.VideoHeight()
	if width <= 0 || height <= 0 {
		return nil, ErrSourceNotReady
	}

	frame, err := src.CurrentFrame()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}

	data, err := e.encode(frame, width, height)
	if err != nil {
		return nil, err
	}

	img := &CapturedImage{
		DataURI:   EncodeDataURI("image/jpeg", data),
		Width:     width,
		Height:    height,
		Timestamp: e.now(),
	}

	log.Debug().
		Int("width", width).
		Int("height", height).
		Int("jpeg_bytes", len(data)).
		Msg("Frame captured")

	return img, nil
}

func (e *Engine) encode(frame image.Image, width, height int) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	sb := frame.Bounds()
	if sb.Dx() == width && sb.Dy() == height {
		draw.Draw(dst, dst.Bounds(), frame, sb.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, sb, draw.Src, nil)
	}

	quality := e.Quality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// EncodeDataURI wraps data as a base64 data URI of the given MIME type.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
