// Package archive writes ZIP bundles of captured photos. Entries are
// compressed with Zstandard (ZIP method 93).
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// MethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const MethodZstd uint16 = 93

func init() {
	// Level 12 maps to SpeedBestCompression in klauspost/compress.
	zip.RegisterCompressor(MethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})
	zip.RegisterDecompressor(MethodZstd, func(r io.Reader) io.ReadCloser {
		d, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(errReader{err})
		}
		return d.IOReadCloser()
	})
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// File is one photo to bundle.
type File struct {
	// Name is the entry name inside the ZIP; the base of Path when empty.
	Name    string
	Path    string
	ModTime time.Time
}

// Summary describes a written bundle.
type Summary struct {
	Files   int
	Skipped []string
	Bytes   int64
}

// WriteBundle writes files into a zstd-compressed ZIP on w. Files that can
// not be opened are skipped and listed in the summary. Duplicate entry
// names get a numeric suffix.
func WriteBundle(w io.Writer, files []File) (Summary, error) {
	var sum Summary
	zw := zip.NewWriter(w)
	used := make(map[string]int)

	for _, f := range files {
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		name = uniqueName(used, name)

		n, err := addFile(zw, name, f)
		if errors.Is(err, errSkip) {
			log.Warn().Err(err).Str("path", f.Path).Msg("Failed to open file for ZIP, skipping")
			sum.Skipped = append(sum.Skipped, f.Path)
			continue
		}
		if err != nil {
			return sum, err
		}
		sum.Files++
		sum.Bytes += n
	}

	if err := zw.Close(); err != nil {
		return sum, fmt.Errorf("close ZIP writer: %w", err)
	}

	log.Debug().Int("files", sum.Files).Int("skipped", len(sum.Skipped)).Int64("bytes", sum.Bytes).Msg("ZIP bundle written")
	return sum, nil
}

var errSkip = errors.New("skip file")

func addFile(zw *zip.Writer, name string, f File) (int64, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errSkip, err)
	}
	defer src.Close()

	mod := f.ModTime
	if mod.IsZero() {
		if info, err := src.Stat(); err == nil {
			mod = info.ModTime()
		} else {
			mod = time.Now()
		}
	}

	header := &zip.FileHeader{
		Name:   name,
		Method: MethodZstd,
	}
	header.Modified = mod

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return 0, fmt.Errorf("create ZIP entry for %s: %w", name, err)
	}
	n, err := io.Copy(writer, src)
	if err != nil {
		return n, fmt.Errorf("write to ZIP for %s: %w", name, err)
	}
	return n, nil
}

func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// CollectCaptures lists the image files directly under dir, oldest first.
func CollectCaptures(dir string, extensions map[string]string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read captures dir: %w", err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := extensions[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, File{Path: filepath.Join(dir, e.Name()), ModTime: info.ModTime()})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Path < files[j].Path
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// BundleName creates a ZIP filename from a label and the export time.
func BundleName(label string, t time.Time) string {
	name := label
	if name == "" {
		name = "capturas"
	}

	// Replace unsafe characters
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)

	if len(name) > 50 {
		name = name[:50]
	}
	return fmt.Sprintf("%s-%s.zip", name, t.Format("20060102-150405"))
}
