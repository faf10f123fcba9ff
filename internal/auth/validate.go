package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fpang/dni-capture/internal/apiclient"
	"github.com/fpang/dni-capture/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ValidationError represents a specific type of token validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoToken indicates no token was found.
	ErrTypeNoToken ValidationErrorType = iota
	// ErrTypeInvalidToken indicates the token was rejected.
	ErrTypeInvalidToken
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the API is rate limiting the client.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateToken checks the token against the API by calling endpoint,
// which should be a cheap authenticated GET. A rejected token fails on the
// first response without retries.
func ValidateToken(ctx context.Context, ts apiclient.TokenSource, client *apiclient.Client, endpoint string) error {
	tok, err := ts.Token(ctx)
	if err != nil {
		return &ValidationError{Type: ErrTypeUnknown, Message: "Failed to resolve auth token", Err: err}
	}
	if tok == "" {
		return &ValidationError{Type: ErrTypeNoToken, Message: "No auth token configured"}
	}

	log.Debug().Str("endpoint", endpoint).Msg("Validating auth token")

	start := time.Now()
	_, err = client.Call(ctx, endpoint, apiclient.Request{Method: http.MethodGet, NoRetry: true})
	elapsed := time.Since(start)

	result := "success"
	var valErr *ValidationError
	if err != nil {
		valErr = Classify(err)
		switch valErr.Type {
		case ErrTypeInvalidToken:
			result = "invalid"
		case ErrTypeNetworkError:
			result = "network_error"
		case ErrTypeQuotaExceeded:
			result = "quota"
		default:
			result = "unknown"
		}
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Duration("TokenValidationMs", elapsed).
		Count("TokenValidationResult").
		Flush()

	log.Debug().
		Str("result", result).
		Dur("duration", elapsed).
		Msg("Token validation result")

	if valErr != nil {
		return valErr
	}
	log.Info().Msg("Auth token validated successfully")
	return nil
}

// Classify maps an API client error to a ValidationError.
func Classify(err error) *ValidationError {
	if err == nil {
		return nil
	}

	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, err)
	}

	if errors.Is(err, apiclient.ErrCanceled) {
		return &ValidationError{Type: ErrTypeUnknown, Message: "Validation canceled", Err: err}
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		log.Error().Err(err).Msg("Network error during token validation")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "Network error - check your connection to the API",
			Err:     err,
		}
	default:
		log.Error().Err(err).Msg("Unknown error during token validation")
		return &ValidationError{
			Type:    ErrTypeUnknown,
			Message: "Failed to validate auth token",
			Err:     err,
		}
	}
}

func classifyStatus(code int, err error) *ValidationError {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		log.Error().Int("code", code).Msg("Authentication failed - invalid token")
		return &ValidationError{
			Type:    ErrTypeInvalidToken,
			Message: "Auth token is invalid, expired, or lacks permissions",
			Err:     err,
		}
	case http.StatusTooManyRequests:
		log.Error().Int("code", code).Msg("Rate limit exceeded")
		return &ValidationError{
			Type:    ErrTypeQuotaExceeded,
			Message: "API rate limit exceeded - try again later",
			Err:     err,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		log.Error().Int("code", code).Msg("Server error during validation")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "API server error - try again later",
			Err:     err,
		}
	default:
		log.Error().Int("code", code).Msg("API error during validation")
		return &ValidationError{
			Type:    ErrTypeUnknown,
			Message: "Failed to validate auth token",
			Err:     err,
		}
	}
}
