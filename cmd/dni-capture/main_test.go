package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{
		"cameras", "capture", "validate-face", "search-face", "face-box", "submit",
		"lookup", "folders", "photos", "photo", "zip", "server-history",
		"uploads", "history", "export", "login",
	} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, cmd.Name())
	}

	cmd, _, err := rootCmd.Find([]string{"uploads", "status"})
	require.NoError(t, err)
	require.Equal(t, "status", cmd.Name())

	cmd, _, err = rootCmd.Find([]string{"history", "clear"})
	require.NoError(t, err)
	require.Equal(t, "clear", cmd.Name())
}

func TestCaptureFlagDefaults(t *testing.T) {
	f := captureCmd.Flags()
	kind, err := f.GetString("kind")
	require.NoError(t, err)
	require.Equal(t, "dni", kind)

	endpoint, err := submitCmd.Flags().GetString("endpoint")
	require.NoError(t, err)
	require.Equal(t, "recovery-account", endpoint)

	require.NotNil(t, loginCmd.Flags().Lookup("token"))
}

func TestParseBody(t *testing.T) {
	require.JSONEq(t, `{}`, string(parseBody("")))

	body := parseBody(`{"fechas":["2025-01-02"]}`)
	var v map[string][]string
	require.NoError(t, json.Unmarshal(body, &v))
	require.Equal(t, []string{"2025-01-02"}, v["fechas"])
}

func TestBuildIdentity(t *testing.T) {
	b := build()
	require.Equal(t, version, b.Version)
	require.Equal(t, commitHash, b.CommitHash)
	require.Equal(t, buildTime, b.BuildTime)
}
