package photo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fpang/dni-capture/internal/apiclient"
	"github.com/fpang/dni-capture/internal/session"
	"github.com/rs/zerolog/log"
)

// ErrCropPending is returned by Crop when no crop endpoint is configured.
var ErrCropPending = errors.New("crop endpoint not configured (pending real endpoint integration)")

// CropResult is the crop endpoint's reply.
type CropResult struct {
	Success         bool   `json:"success"`
	CroppedImageURL string `json:"croppedImageUrl"`
	Message         string `json:"message"`
}

// CropService sends photos to the crop endpoint and records the result in
// the session state.
type CropService struct {
	api      *apiclient.Client
	endpoint string
	state    *session.State
}

// NewCropService creates a CropService. endpoint may be empty, in which
// case every Crop reports ErrCropPending.
func NewCropService(api *apiclient.Client, endpoint string, state *session.State) *CropService {
	return &CropService{api: api, endpoint: endpoint, state: state}
}

// Crop posts the image as the multipart "image" part. While it runs the
// session is marked loading; on failure the session error slot is set.
func (c *CropService) Crop(ctx context.Context, dataURI string) (*CropResult, error) {
	var result *CropResult
	err := c.state.Track(func() error {
		res, err := c.crop(ctx, dataURI)
		if err != nil {
			return fmt.Errorf("process image: %w", err)
		}
		result = res
		c.state.SetCroppedPhotoURL(res.CroppedImageURL)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *CropService) crop(ctx context.Context, dataURI string) (*CropResult, error) {
	if c.endpoint == "" {
		return nil, ErrCropPending
	}

	form := apiclient.NewForm()
	if err := form.DataURIFile("image", "image.jpg", dataURI); err != nil {
		return nil, err
	}

	res, err := apiclient.CallJSON[CropResult](ctx, c.api, c.endpoint, apiclient.Request{
		Method: http.MethodPost,
		Form:   form,
	})
	if err != nil {
		return nil, err
	}
	if res.CroppedImageURL == "" {
		return nil, fmt.Errorf("crop response has no croppedImageUrl (message: %q)", res.Message)
	}

	log.Debug().Str("url", res.CroppedImageURL).Msg("Image cropped")
	return &res, nil
}
