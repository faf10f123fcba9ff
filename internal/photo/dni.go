package photo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fpang/dni-capture/internal/apiclient"
	"github.com/rs/zerolog/log"
)

// DNI upload API paths.
const (
	PathDNIUpload  = "/api/v1/dni/upload"
	PathDNIStatus  = "/api/v1/dni/status/"
	PathDNIHistory = "/api/v1/dni/history"
)

// isoMillis matches the millisecond ISO-8601 timestamps the API expects.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// UploadMetadata describes the client that took the photo.
type UploadMetadata struct {
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform"`
	Language  string `json:"language"`
}

// DefaultMetadata describes this process.
func DefaultMetadata(version string) UploadMetadata {
	lang := os.Getenv("LANG")
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	return UploadMetadata{
		UserAgent: "dni-capture/" + version,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Language:  strings.ReplaceAll(lang, "_", "-"),
	}
}

// DNIClient calls the versioned DNI upload API.
type DNIClient struct {
	api *apiclient.Client
	now func() time.Time
}

// NewDNIClient creates a DNIClient.
func NewDNIClient(api *apiclient.Client) *DNIClient {
	return &DNIClient{api: api, now: time.Now}
}

func (c *DNIClient) uploadRequest(dataURI string, meta UploadMetadata) (apiclient.Request, error) {
	now := c.now().UTC()

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return apiclient.Request{}, fmt.Errorf("encode metadata: %w", err)
	}

	form := apiclient.NewForm()
	if err := form.DataURIFile("dni_photo", fmt.Sprintf("dni_%d.jpg", now.UnixMilli()), dataURI); err != nil {
		return apiclient.Request{}, err
	}
	form.Field("upload_timestamp", now.Format(isoMillis))
	form.Field("metadata", string(metaJSON))

	return apiclient.Request{Method: http.MethodPost, Form: form}, nil
}

// UploadDNI uploads a DNI photo given as a data URI.
func (c *DNIClient) UploadDNI(ctx context.Context, dataURI string, meta UploadMetadata) (json.RawMessage, error) {
	req, err := c.uploadRequest(dataURI, meta)
	if err != nil {
		return nil, fmt.Errorf("upload DNI photo: %w", err)
	}
	raw, err := c.api.Call(ctx, PathDNIUpload, req)
	if err != nil {
		log.Error().Err(err).Msg("DNI photo upload failed")
		return nil, fmt.Errorf("upload DNI photo: %w", err)
	}
	log.Info().Msg("DNI photo uploaded")
	return raw, nil
}

// StartUploadDNI runs UploadDNI in the background.
func (c *DNIClient) StartUploadDNI(ctx context.Context, dataURI string, meta UploadMetadata) (*apiclient.Pending, error) {
	req, err := c.uploadRequest(dataURI, meta)
	if err != nil {
		return nil, fmt.Errorf("upload DNI photo: %w", err)
	}
	return c.api.Start(ctx, PathDNIUpload, req), nil
}

// UploadStatus returns the processing status of an upload.
func (c *DNIClient) UploadStatus(ctx context.Context, uploadID string) (json.RawMessage, error) {
	return c.api.Call(ctx, PathDNIStatus+url.PathEscape(uploadID), apiclient.Request{})
}

func (c *DNIClient) StartUploadStatus(ctx context.Context, uploadID string) *apiclient.Pending {
	return c.api.Start(ctx, PathDNIStatus+url.PathEscape(uploadID), apiclient.Request{})
}

// UploadHistory lists previous uploads.
func (c *DNIClient) UploadHistory(ctx context.Context) (json.RawMessage, error) {
	return c.api.Call(ctx, PathDNIHistory, apiclient.Request{})
}

func (c *DNIClient) StartUploadHistory(ctx context.Context) *apiclient.Pending {
	return c.api.Start(ctx, PathDNIHistory, apiclient.Request{})
}

// DeleteUpload removes an upload.
func (c *DNIClient) DeleteUpload(ctx context.Context, uploadID string) (json.RawMessage, error) {
	return c.api.Call(ctx, PathDNIUpload+"/"+url.PathEscape(uploadID), apiclient.Request{Method: http.MethodDelete})
}

func (c *DNIClient) StartDeleteUpload(ctx context.Context, uploadID string) *apiclient.Pending {
	return c.api.Start(ctx, PathDNIUpload+"/"+url.PathEscape(uploadID), apiclient.Request{Method: http.MethodDelete})
}
