package capture

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// SupportedStillExtensions maps the image extensions accepted as still sources
// to their MIME types.
var SupportedStillExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// StillSource is a FrameSource backed by an image file, used when a photo
// already exists on disk instead of coming from a camera.
type StillSource struct {
	Path string

	// Taken is the EXIF capture time, zero when the file carries none.
	Taken time.Time

	// Camera make and model from EXIF, if present.
	CameraMake  string
	CameraModel string

	img image.Image
}

// Compile-time interface check.
var _ FrameSource = (*StillSource)(nil)

// OpenStill decodes an image file and reads its EXIF metadata. Missing or
// unreadable metadata is logged and ignored.
func OpenStill(path string) (*StillSource, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := SupportedStillExtensions[ext]; !ok {
		return nil, fmt.Errorf("unsupported image extension: %s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	src := &StillSource{Path: path, img: img}

	if _, err := f.Seek(0, 0); err == nil {
		src.readMetadata(f)
	}

	log.Debug().
		Str("path", path).
		Str("format", format).
		Int("width", src.VideoWidth()).
		Int("height", src.VideoHeight()).
		Bool("has_date", !src.Taken.IsZero()).
		Msg("Still image opened")

	return src, nil
}

// readMetadata fills Taken and camera info using the fallback chain
// DateTimeOriginal > CreateDate > ModifyDate.
func (s *StillSource) readMetadata(f *os.File) {
	exifData, err := imagemeta.Decode(f)
	if err != nil {
		log.Debug().Err(err).Str("path", s.Path).Msg("No EXIF metadata")
		return
	}

	switch {
	case !exifData.DateTimeOriginal().IsZero():
		s.Taken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		s.Taken = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		s.Taken = exifData.ModifyDate()
	}

	s.CameraMake = strings.TrimSpace(exifData.Make)
	s.CameraModel = strings.TrimSpace(exifData.Model)
}

func (s *StillSource) VideoWidth() int {
	if s.img == nil {
		return 0
	}
	return s.img.Bounds().Dx()
}

func (s *StillSource) VideoHeight() int {
	if s.img == nil {
		return 0
	}
	return s.img.Bounds().Dy()
}

func (s *StillSource) CurrentFrame() (image.Image, error) {
	if s.img == nil {
		return nil, ErrSourceNotReady
	}
	return s.img, nil
}
