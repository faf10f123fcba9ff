package capture

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidDataURI is returned for strings that are not base64 data URIs.
var ErrInvalidDataURI = errors.New("invalid data URI")

// DecodeDataURI splits a "data:<mime>;base64,<payload>" string into its MIME
// type and decoded bytes.
func DecodeDataURI(uri string) (mimeType string, data []byte, err error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return "", nil, ErrInvalidDataURI
	}

	meta := strings.TrimPrefix(header, "data:")
	mimeType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return "", nil, ErrInvalidDataURI
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Join(ErrInvalidDataURI, err)
	}
	return mimeType, data, nil
}
