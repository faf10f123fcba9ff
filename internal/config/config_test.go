package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://api.tudominio.com", cfg.APIURL)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 3, cfg.HTTPMaxRetries)
	require.Equal(t, time.Second, cfg.HTTPBaseDelay)
	require.Equal(t, 10, cfg.HistoryCap)
	require.Equal(t, StorageFile, cfg.Storage)
	require.Equal(t, filepath.Join(home, ".dni-capture"), cfg.StorageDir)
	require.False(t, cfg.Metrics)
	require.False(t, cfg.NeedsAWS())

	client := cfg.Client()
	require.Equal(t, cfg.APIURL, client.BaseURL)
	require.Equal(t, cfg.HTTPMaxRetries, client.MaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DNI_API_URL", "http://localhost:8080")
	t.Setenv("DNI_HTTP_TIMEOUT", "5s")
	t.Setenv("DNI_HTTP_MAX_RETRIES", "1")
	t.Setenv("DNI_STORAGE", "dynamodb")
	t.Setenv("DNI_DYNAMO_TABLE", "dni-history")
	t.Setenv("DNI_METRICS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.APIURL)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 1, cfg.HTTPMaxRetries)
	require.True(t, cfg.NeedsAWS())
	require.True(t, cfg.Metrics)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"file", Config{Storage: StorageFile, StorageDir: "/tmp/x"}, false},
		{"file without dir", Config{Storage: StorageFile}, true},
		{"s3 without bucket", Config{Storage: StorageS3}, true},
		{"s3", Config{Storage: StorageS3, S3Bucket: "b"}, false},
		{"dynamodb without table", Config{Storage: StorageDynamo}, true},
		{"unknown backend", Config{Storage: "redis"}, true},
		{"negative retries", Config{Storage: StorageS3, S3Bucket: "b", HTTPMaxRetries: -1}, true},
		{"max retries", Config{Storage: StorageS3, S3Bucket: "b", HTTPMaxRetries: MaxHTTPRetries}, false},
		{"too many retries", Config{Storage: StorageS3, S3Bucket: "b", HTTPMaxRetries: 64}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsRetryOverflow(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DNI_STORAGE", StorageFile)
	t.Setenv("DNI_STORAGE_DIR", t.TempDir())
	t.Setenv("DNI_HTTP_MAX_RETRIES", "64")

	_, err := Load()
	require.ErrorContains(t, err, "DNI_HTTP_MAX_RETRIES")
}
