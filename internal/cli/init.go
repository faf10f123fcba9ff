package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/fpang/dni-capture/internal/apiclient"
	"github.com/fpang/dni-capture/internal/auth"
	"github.com/fpang/dni-capture/internal/config"
	"github.com/fpang/dni-capture/internal/logging"
	"github.com/fpang/dni-capture/internal/metrics"
	"github.com/fpang/dni-capture/internal/photo"
	"github.com/fpang/dni-capture/internal/session"
	"github.com/rs/zerolog/log"
)

// Build identifies the binary in start-up logs and upload metadata.
type Build struct {
	Version    string
	CommitHash string
	BuildTime  string
}

// Env is everything a command needs to talk to the API and the session.
type Env struct {
	Config config.Config
	Build  Build

	Tokens *auth.Chain
	API    *apiclient.Client
	Photos *photo.Service
	DNI    *photo.DNIClient
	State  *session.State
	Crop   *photo.CropService
}

// CapturesDir is where captured photos are written by default.
func (e *Env) CapturesDir() string {
	return filepath.Join(e.Config.StorageDir, "captures")
}

// InitEnv loads configuration and builds the API clients and session state.
// Exits fatally on failure.
func InitEnv(ctx context.Context, build Build) *Env {
	env, err := NewEnv(ctx, build)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize client")
	}
	return env
}

// NewEnv is InitEnv without the fatal exit.
func NewEnv(ctx context.Context, build Build) (*Env, error) {
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var awsCfg *aws.Config
	if cfg.NeedsAWS() || os.Getenv(auth.EnvSSMParam) != "" {
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &c
	}

	var ssmClient auth.SSMAPI
	if awsCfg != nil {
		ssmClient = ssm.NewFromConfig(*awsCfg)
	}
	tokens := auth.NewChain(ssmClient)

	if cfg.Metrics {
		metrics.SetOutput(os.Stderr)
	}

	opts := []apiclient.Option{apiclient.WithTokenSource(tokens)}
	if cfg.Metrics {
		opts = append(opts, apiclient.WithMetrics())
	}
	api := apiclient.New(cfg.Client(), opts...)

	store, err := openStorage(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	state, err := session.Open(ctx, store, session.WithHistoryCap(cfg.HistoryCap))
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	logging.NewStartupLogger("dni-capture").
		Version(build.Version).
		CommitHash(build.CommitHash).
		BuildTime(build.BuildTime).
		Endpoint("api", api.BaseURL()).
		Endpoint("una", cfg.UNAURL).
		Endpoint("crop", cfg.CropEndpoint).
		S3Bucket("history", bucketFor(cfg)).
		DynamoTable("history", tableFor(cfg)).
		SSMParam("authToken", tokens.SSMParam).
		Feature("metrics", cfg.Metrics).
		Feature("crop", cfg.CropEndpoint != "").
		Config("storage", cfg.Storage).
		Config("httpTimeout", cfg.HTTPTimeout.String()).
		Config("httpMaxRetries", fmt.Sprint(cfg.HTTPMaxRetries)).
		Config("historyCap", fmt.Sprint(cfg.HistoryCap)).
		InitDuration(time.Since(start)).
		Log()

	return &Env{
		Config: cfg,
		Build:  build,
		Tokens: tokens,
		API:    api,
		Photos: photo.NewService(api, cfg.UNAURL),
		DNI:    photo.NewDNIClient(api),
		State:  state,
		Crop:   photo.NewCropService(api, cfg.CropEndpoint, state),
	}, nil
}

func openStorage(cfg config.Config, awsCfg *aws.Config) (session.Storage, error) {
	switch cfg.Storage {
	case config.StorageS3:
		return session.NewS3Storage(s3.NewFromConfig(*awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
	case config.StorageDynamo:
		return session.NewDynamoStorage(dynamodb.NewFromConfig(*awsCfg), cfg.DynamoTable), nil
	case config.StorageFile:
		return session.NewFileStorage(cfg.StorageDir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func bucketFor(cfg config.Config) string {
	if cfg.Storage == config.StorageS3 {
		return cfg.S3Bucket
	}
	return ""
}

func tableFor(cfg config.Config) string {
	if cfg.Storage == config.StorageDynamo {
		return cfg.DynamoTable
	}
	return ""
}
