// Package config loads the client configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/fpang/dni-capture/internal/apiclient"
	"github.com/joho/godotenv"
)

// Storage backends for the photo history.
const (
	StorageFile   = "file"
	StorageS3     = "s3"
	StorageDynamo = "dynamodb"
)

// MaxHTTPRetries bounds DNI_HTTP_MAX_RETRIES so the exponential backoff
// stays in range.
const MaxHTTPRetries = 10

type Config struct {
	// Primary API base URL.
	APIURL string `env:"DNI_API_URL" envDefault:"https://api.tudominio.com"`

	// Secondary API used for name lookups by DNI.
	UNAURL string `env:"DNI_API_UNA_URL"`

	HTTPTimeout    time.Duration `env:"DNI_HTTP_TIMEOUT" envDefault:"30s"`
	HTTPMaxRetries int           `env:"DNI_HTTP_MAX_RETRIES" envDefault:"3"`
	HTTPBaseDelay  time.Duration `env:"DNI_HTTP_BASE_DELAY" envDefault:"1s"`

	HistoryCap int `env:"DNI_HISTORY_CAP" envDefault:"10"`

	Storage     string `env:"DNI_STORAGE" envDefault:"file"`
	StorageDir  string `env:"DNI_STORAGE_DIR,expand" envDefault:"${HOME}/.dni-capture"`
	S3Bucket    string `env:"DNI_S3_BUCKET"`
	S3Prefix    string `env:"DNI_S3_PREFIX" envDefault:"dni-capture"`
	DynamoTable string `env:"DNI_DYNAMO_TABLE"`

	// Crop service endpoint; cropping is reported as pending when unset.
	CropEndpoint string `env:"DNI_CROP_ENDPOINT"`

	// Metrics enables EMF call metrics on stderr.
	Metrics bool `env:"DNI_METRICS" envDefault:"false"`
}

// Load loads .env (if present) and parses environment variables into Config.
func Load() (Config, error) {
	// Load .env if available; ignore error if file does not exist
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected storage backend is fully configured.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageFile:
		if c.StorageDir == "" {
			return fmt.Errorf("DNI_STORAGE_DIR is required for file storage")
		}
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("DNI_S3_BUCKET is required for s3 storage")
		}
	case StorageDynamo:
		if c.DynamoTable == "" {
			return fmt.Errorf("DNI_DYNAMO_TABLE is required for dynamodb storage")
		}
	default:
		return fmt.Errorf("unknown DNI_STORAGE %q (want file, s3 or dynamodb)", c.Storage)
	}
	if c.HTTPMaxRetries < 0 {
		return fmt.Errorf("DNI_HTTP_MAX_RETRIES must not be negative")
	}
	if c.HTTPMaxRetries > MaxHTTPRetries {
		return fmt.Errorf("DNI_HTTP_MAX_RETRIES must be at most %d, got %d", MaxHTTPRetries, c.HTTPMaxRetries)
	}
	return nil
}

// NeedsAWS reports whether the storage backend talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.Storage == StorageS3 || c.Storage == StorageDynamo
}

// Client returns the HTTP client settings for the primary API.
func (c Config) Client() apiclient.Config {
	return apiclient.Config{
		BaseURL:    c.APIURL,
		Timeout:    c.HTTPTimeout,
		MaxRetries: c.HTTPMaxRetries,
		BaseDelay:  c.HTTPBaseDelay,
	}
}
