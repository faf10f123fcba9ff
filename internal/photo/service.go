// Package photo wraps the remote photo API: face validation, uploads, face
// search, folder review and compression, history lookups, the DNI upload
// API, and the crop service.
//
// Every call goes through the shared apiclient.Client, so it inherits the
// per-attempt timeout, retries, and bearer authentication. Each operation
// has a Start variant that runs in the background and can be canceled.
package photo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fpang/dni-capture/internal/apiclient"
	"github.com/rs/zerolog/log"
)

// API paths on the primary service.
const (
	PathValidateFace        = "/api/validacion_cara"
	PathUploadPhoto         = "/api/tomar_fotos"
	PathSearchFace          = "/api/buscar_cara"
	PathFaceSquare          = "/api/buscar_recuadro_en_cara"
	PathFoldersAvailable    = "/api/revision"
	PathPhotosByDate        = "/api/getphotos_date"
	PathFoldersWithQuantity = "/api/getFoldersAndQuantity"
	PathZipFolders          = "/api/comprimirfechas"
	PathZipAllFolders       = "/api/comprimir"
	PathHistoryPhotos       = "/api_fotos/getUrlPhoto-A"

	// DefaultProcessedEndpoint receives processed photos when no endpoint is given.
	DefaultProcessedEndpoint = "recovery-account"
)

// UnknownName is returned by LookupName when the directory has no entry.
const UnknownName = "Desconocido"

// ErrNoLookupURL is returned by LookupName when no secondary API is configured.
var ErrNoLookupURL = errors.New("name lookup API URL not configured")

// UploadRequest is the body of a multipart photo call.
type UploadRequest struct {
	// Payload is the image as a base64 data URI.
	Payload string

	// AssociatedID is the document number the photo belongs to.
	AssociatedID string

	AuxiliaryCodes []string

	// Endpoint overrides the target path for SubmitProcessed.
	Endpoint string

	// Extra fields sent alongside; zero values are dropped.
	Extra map[string]any
}

// Form builds the multipart body. The payload becomes the "file" part.
func (r UploadRequest) Form() (*apiclient.Form, error) {
	data := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		data[k] = v
	}
	data[apiclient.ImageKey] = r.Payload
	data["dni"] = r.AssociatedID
	data["codigos"] = r.AuxiliaryCodes
	return apiclient.MakeForm(data)
}

// Service calls the photo endpoints.
type Service struct {
	api    *apiclient.Client
	unaURL string
}

// NewService creates a Service. unaURL is the base URL of the name lookup
// API and may be empty.
func NewService(api *apiclient.Client, unaURL string) *Service {
	return &Service{api: api, unaURL: strings.TrimRight(unaURL, "/")}
}

func (s *Service) formRequest(req UploadRequest) (apiclient.Request, error) {
	form, err := req.Form()
	if err != nil {
		return apiclient.Request{}, err
	}
	return apiclient.Request{Method: http.MethodPost, Form: form}, nil
}

func (s *Service) postForm(ctx context.Context, path string, req UploadRequest) (json.RawMessage, error) {
	r, err := s.formRequest(req)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Str("dni", req.AssociatedID).Msg("Posting photo")
	return s.api.Call(ctx, path, r)
}

func (s *Service) startForm(ctx context.Context, path string, req UploadRequest) (*apiclient.Pending, error) {
	r, err := s.formRequest(req)
	if err != nil {
		return nil, err
	}
	return s.api.Start(ctx, path, r), nil
}

func jsonPost(body any) apiclient.Request {
	return apiclient.Request{Method: http.MethodPost, Body: body}
}

// ValidateFace sends a face photo and returns the API's accuracy verdict.
func (s *Service) ValidateFace(ctx context.Context, req UploadRequest) (json.RawMessage, error) {
	return s.postForm(ctx, PathValidateFace, req)
}

func (s *Service) StartValidateFace(ctx context.Context, req UploadRequest) (*apiclient.Pending, error) {
	return s.startForm(ctx, PathValidateFace, req)
}

// UploadPhoto stores a captured photo.
func (s *Service) UploadPhoto(ctx context.Context, req UploadRequest) (json.RawMessage, error) {
	return s.postForm(ctx, PathUploadPhoto, req)
}

func (s *Service) StartUploadPhoto(ctx context.Context, req UploadRequest) (*apiclient.Pending, error) {
	return s.startForm(ctx, PathUploadPhoto, req)
}

// SearchFace looks a person up by face.
func (s *Service) SearchFace(ctx context.Context, req UploadRequest) (json.RawMessage, error) {
	return s.postForm(ctx, PathSearchFace, req)
}

func (s *Service) StartSearchFace(ctx context.Context, req UploadRequest) (*apiclient.Pending, error) {
	return s.startForm(ctx, PathSearchFace, req)
}

// FaceSquare returns the bounding box of the face in the photo.
func (s *Service) FaceSquare(ctx context.Context, req UploadRequest) (*FaceBox, error) {
	raw, err := s.postForm(ctx, PathFaceSquare, req)
	if err != nil {
		return nil, err
	}
	return decodeFaceBox(raw)
}

func (s *Service) StartFaceSquare(ctx context.Context, req UploadRequest) (*apiclient.Pending, error) {
	return s.startForm(ctx, PathFaceSquare, req)
}

// FaceBox is a face bounding box in image pixels.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func decodeFaceBox(raw json.RawMessage) (*FaceBox, error) {
	var box FaceBox
	if len(raw) == 0 {
		return &box, nil
	}
	if err := json.Unmarshal(raw, &box); err != nil {
		return nil, fmt.Errorf("decode face box: %w", err)
	}
	return &box, nil
}

func processedPath(endpoint string) string {
	if endpoint == "" {
		endpoint = DefaultProcessedEndpoint
	}
	return "/" + strings.TrimLeft(endpoint, "/")
}

// SubmitProcessed posts a processed photo as JSON to req.Endpoint
// (DefaultProcessedEndpoint when empty).
func (s *Service) SubmitProcessed(ctx context.Context, req UploadRequest) (json.RawMessage, error) {
	return s.api.Call(ctx, processedPath(req.Endpoint), jsonPost(processedBody(req)))
}

func (s *Service) StartSubmitProcessed(ctx context.Context, req UploadRequest) *apiclient.Pending {
	return s.api.Start(ctx, processedPath(req.Endpoint), jsonPost(processedBody(req)))
}

func processedBody(req UploadRequest) map[string]any {
	body := make(map[string]any, len(req.Extra)+3)
	for k, v := range req.Extra {
		body[k] = v
	}
	body[apiclient.ImageKey] = req.Payload
	body["dni"] = req.AssociatedID
	if len(req.AuxiliaryCodes) > 0 {
		body["codigos"] = req.AuxiliaryCodes
	}
	return body
}

// PhotoByPath fetches a stored photo record by its server path.
func (s *Service) PhotoByPath(ctx context.Context, path string) (json.RawMessage, error) {
	return s.api.Call(ctx, "/"+strings.TrimLeft(path, "/"), jsonPost(map[string]any{}))
}

func (s *Service) StartPhotoByPath(ctx context.Context, path string) *apiclient.Pending {
	return s.api.Start(ctx, "/"+strings.TrimLeft(path, "/"), jsonPost(map[string]any{}))
}

// FoldersAvailable lists the date folders available for review.
func (s *Service) FoldersAvailable(ctx context.Context) (json.RawMessage, error) {
	return s.api.Call(ctx, PathFoldersAvailable, jsonPost(nil))
}

func (s *Service) StartFoldersAvailable(ctx context.Context) *apiclient.Pending {
	return s.api.Start(ctx, PathFoldersAvailable, jsonPost(nil))
}

// PhotosByDate lists the photos of one date folder.
func (s *Service) PhotosByDate(ctx context.Context, body any) (json.RawMessage, error) {
	return s.api.Call(ctx, PathPhotosByDate, jsonPost(body))
}

func (s *Service) StartPhotosByDate(ctx context.Context, body any) *apiclient.Pending {
	return s.api.Start(ctx, PathPhotosByDate, jsonPost(body))
}

// FoldersWithQuantity lists date folders with their photo counts.
func (s *Service) FoldersWithQuantity(ctx context.Context) (json.RawMessage, error) {
	return s.api.Call(ctx, PathFoldersWithQuantity, jsonPost(nil))
}

func (s *Service) StartFoldersWithQuantity(ctx context.Context) *apiclient.Pending {
	return s.api.Start(ctx, PathFoldersWithQuantity, jsonPost(nil))
}

// ZipFolders asks the server to compress the given date folders.
func (s *Service) ZipFolders(ctx context.Context, body any) (json.RawMessage, error) {
	return s.api.Call(ctx, PathZipFolders, jsonPost(body))
}

func (s *Service) StartZipFolders(ctx context.Context, body any) *apiclient.Pending {
	return s.api.Start(ctx, PathZipFolders, jsonPost(body))
}

// ZipAllFolders asks the server to compress every folder.
func (s *Service) ZipAllFolders(ctx context.Context, body any) (json.RawMessage, error) {
	return s.api.Call(ctx, PathZipAllFolders, jsonPost(body))
}

func (s *Service) StartZipAllFolders(ctx context.Context, body any) *apiclient.Pending {
	return s.api.Start(ctx, PathZipAllFolders, jsonPost(body))
}

// HistoryPhotos returns photo URLs from the server-side history.
func (s *Service) HistoryPhotos(ctx context.Context, body any) (json.RawMessage, error) {
	return s.api.Call(ctx, PathHistoryPhotos, jsonPost(body))
}

func (s *Service) StartHistoryPhotos(ctx context.Context, body any) *apiclient.Pending {
	return s.api.Start(ctx, PathHistoryPhotos, jsonPost(body))
}

type lookupResponse struct {
	Data []struct {
		Nombre string `json:"nombre"`
	} `json:"data"`
}

func (s *Service) lookupURL(dni string) (string, error) {
	if s.unaURL == "" {
		return "", ErrNoLookupURL
	}
	return fmt.Sprintf("%s/LABEL2PHOTOS/v1/%s/", s.unaURL, url.PathEscape(dni)), nil
}

// LookupName returns the registered name for a DNI, or UnknownName when
// the directory has none.
func (s *Service) LookupName(ctx context.Context, dni string) (string, error) {
	u, err := s.lookupURL(dni)
	if err != nil {
		return "", err
	}
	raw, err := s.api.Call(ctx, u, apiclient.Request{})
	if err != nil {
		return "", err
	}
	return nameFromLookup(raw), nil
}

// StartLookupName runs LookupName in the background. The Pending result is
// the raw lookup response; pass it to NameFromLookup.
func (s *Service) StartLookupName(ctx context.Context, dni string) (*apiclient.Pending, error) {
	u, err := s.lookupURL(dni)
	if err != nil {
		return nil, err
	}
	return s.api.Start(ctx, u, apiclient.Request{}), nil
}

// NameFromLookup extracts the name from a raw lookup response.
func NameFromLookup(raw json.RawMessage) string {
	return nameFromLookup(raw)
}

func nameFromLookup(raw json.RawMessage) string {
	var resp lookupResponse
	if len(raw) == 0 || json.Unmarshal(raw, &resp) != nil {
		return UnknownName
	}
	if len(resp.Data) == 0 || strings.TrimSpace(resp.Data[0].Nombre) == "" {
		return UnknownName
	}
	return resp.Data[0].Nombre
}
