package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fpang/dni-capture/internal/apiclient"
	"github.com/fpang/dni-capture/internal/auth"
	"github.com/fpang/dni-capture/internal/camera"
	"github.com/fpang/dni-capture/internal/photo"
	"github.com/rs/zerolog/log"
)

// ResolveOutputPath makes sure the parent directory of path exists and
// returns the absolute path. Exits fatally on failure.
func ResolveOutputPath(path string) string {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to create output directory")
	}
	absPath, err := filepath.Abs(path)
	if err == nil {
		path = absPath
	}
	return path
}

// HandleValidationError processes auth.ValidationError and exits with appropriate messaging.
func HandleValidationError(err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Type {
		case auth.ErrTypeNoToken:
			log.Fatal().Msgf("No auth token configured. Set %s or run: dni-capture login --token <token>", auth.EnvToken)
		case auth.ErrTypeInvalidToken:
			log.Fatal().Err(err).Msg("Invalid auth token. Please check your token and try again")
		case auth.ErrTypeNetworkError:
			log.Fatal().Err(err).Msg("Network error. Please check your internet connection")
		case auth.ErrTypeQuotaExceeded:
			log.Fatal().Err(err).Msg("API rate limit reached. Please try again later")
		default:
			log.Fatal().Err(err).Msg("Auth token validation failed")
		}
	} else {
		log.Fatal().Err(err).Msg("unexpected error during auth token validation")
	}
	os.Exit(1)
}

// HandleError exits with a message matched to the error's kind.
func HandleError(err error, msg string) {
	var (
		acqErr    *camera.AcquisitionError
		reqErr    *apiclient.RequestError
		statusErr *apiclient.StatusError
	)
	switch {
	case errors.Is(err, apiclient.ErrCanceled):
		log.Fatal().Msg("Operation canceled")
	case errors.Is(err, photo.ErrCropPending):
		log.Fatal().Msg("Cropping is not available: set DNI_CROP_ENDPOINT")
	case errors.Is(err, photo.ErrNoLookupURL):
		log.Fatal().Msg("Name lookup is not available: set DNI_API_UNA_URL")
	case errors.As(err, &acqErr):
		log.Fatal().Err(err).Str("device", acqErr.DeviceID).Msg(camera.Message(err))
	case errors.Is(err, camera.ErrPermissionDenied),
		errors.Is(err, camera.ErrNoDevicesFound),
		errors.Is(err, camera.ErrNotSupported),
		errors.Is(err, camera.ErrInsufficientDevices):
		log.Fatal().Msg(camera.Message(err))
	case errors.As(err, &reqErr) && errors.As(err, &statusErr):
		log.Fatal().
			Int("status", statusErr.StatusCode).
			Int("attempts", reqErr.Attempts).
			Str("endpoint", reqErr.Endpoint).
			Msg(msg)
	case errors.As(err, &reqErr):
		log.Fatal().Err(reqErr.Err).Int("attempts", reqErr.Attempts).Str("endpoint", reqErr.Endpoint).Msg(msg)
	default:
		log.Fatal().Err(err).Msg(msg)
	}
	os.Exit(1)
}
