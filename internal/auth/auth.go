package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	// EnvToken holds a bearer token that takes priority over every other source.
	EnvToken = "DNI_AUTH_TOKEN"

	// EnvSSMParam names an SSM SecureString parameter holding the token.
	EnvSSMParam = "DNI_AUTH_SSM_PARAM"

	configFileName = ".dni-capture"
	configFileType = "yaml"
	tokenKey       = "auth_token"
)

// SSMAPI is the subset of the SSM client used to read the token parameter.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Chain resolves the bearer token for API calls.
// Priority order:
//  1. DNI_AUTH_TOKEN environment variable
//  2. auth_token in the config file (~/.dni-capture.yaml)
//  3. SSM parameter named by DNI_AUTH_SSM_PARAM (decrypted)
//
// A missing token is not an error; requests then go out unauthenticated.
type Chain struct {
	ConfigPath string
	SSMParam   string
	SSM        SSMAPI

	mu       sync.Mutex
	ssmToken string
}

// NewChain builds a Chain from the environment. ssmClient may be nil when
// no AWS configuration is available.
func NewChain(ssmClient SSMAPI) *Chain {
	path, err := DefaultConfigPath()
	if err != nil {
		log.Warn().Err(err).Msg("No config file location for auth token")
	}
	return &Chain{
		ConfigPath: path,
		SSMParam:   os.Getenv(EnvSSMParam),
		SSM:        ssmClient,
	}
}

// Token implements the API client's token source.
func (c *Chain) Token(ctx context.Context) (string, error) {
	if tok := strings.TrimSpace(os.Getenv(EnvToken)); tok != "" {
		log.Debug().Msg("Using auth token from environment variable")
		return tok, nil
	}

	tok, err := readTokenFile(c.ConfigPath)
	if err != nil {
		log.Debug().Err(err).Str("file", c.ConfigPath).Msg("Auth token not read from config file")
	} else if tok != "" {
		log.Debug().Str("file", c.ConfigPath).Msg("Using auth token from config file")
		return tok, nil
	}

	if c.SSMParam == "" || c.SSM == nil {
		return "", nil
	}
	return c.fromSSM(ctx)
}

// fromSSM reads the parameter once and caches the value for the process.
func (c *Chain) fromSSM(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ssmToken != "" {
		return c.ssmToken, nil
	}

	out, err := c.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read SSM parameter %s: %w", c.SSMParam, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", c.SSMParam)
	}

	c.ssmToken = strings.TrimSpace(*out.Parameter.Value)
	log.Debug().Str("param", c.SSMParam).Msg("Using auth token from SSM")
	return c.ssmToken, nil
}

// DefaultConfigPath returns ~/.dni-capture.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configFileName+"."+configFileType), nil
}

func readTokenFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("no config file path")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	// The file holds a credential and must be owner-only.
	if mode := fi.Mode().Perm(); mode&0077 != 0 {
		log.Warn().
			Str("file", path).
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Config file has insecure permissions (should be 0600); ignoring auth token")
		return "", fmt.Errorf("insecure permissions %04o on %s", mode, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configFileType)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}
	return strings.TrimSpace(v.GetString(tokenKey)), nil
}

// SaveToken writes token to the config file at path, keeping any other
// keys, and restricts the file to its owner. An empty token removes the
// stored credential.
func SaveToken(path, token string) error {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configFileType)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	v.Set(tokenKey, strings.TrimSpace(token))

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("restrict config permissions: %w", err)
	}

	log.Info().Str("file", path).Bool("cleared", token == "").Msg("Auth token saved")
	return nil
}
