package capture

import "math"

// Document geometry limits for a DNI photo.
const (
	MinDocumentWidth    = 640
	MinDocumentHeight   = 480
	DocumentAspectRatio = 1.5
	AspectTolerance     = 0.3
)

// GeometryReport lists the individual document checks.
type GeometryReport struct {
	ReasonableSize  bool `json:"hasReasonableSize"`
	GoodAspectRatio bool `json:"hasGoodAspectRatio"`
	NotEmpty        bool `json:"isNotEmpty"`
}

// Valid reports whether every check passed.
func (r GeometryReport) Valid() bool {
	return r.ReasonableSize && r.GoodAspectRatio && r.NotEmpty
}

// CheckDocumentGeometry runs the local size and aspect-ratio checks for a
// DNI photo. Content checks (text, document type) belong to the remote
// validation endpoint.
func CheckDocumentGeometry(width, height int) GeometryReport {
	r := GeometryReport{
		ReasonableSize: width >= MinDocumentWidth && height >= MinDocumentHeight,
		NotEmpty:       width > 0 && height > 0,
	}
	if height > 0 {
		r.GoodAspectRatio = math.Abs(float64(width)/float64(height)-DocumentAspectRatio) < AspectTolerance
	}
	return r
}
