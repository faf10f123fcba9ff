package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fpang/dni-capture/internal/cli"
	"github.com/rs/zerolog/log"
)

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to format output")
		return
	}
	fmt.Fprintln(os.Stdout, string(data))
}

// printRaw pretty-prints an API response. Empty responses print nothing.
func printRaw(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(os.Stdout, string(raw))
		return
	}
	fmt.Fprintln(os.Stdout, buf.String())
}

// trackJSON runs fn with the session marked loading.
func trackJSON(env *cli.Env, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	var out json.RawMessage
	err := env.State.Track(func() error {
		res, err := fn()
		out = res
		return err
	})
	return out, err
}

// parseBody parses a --body flag. An empty flag yields an empty object.
func parseBody(body string) json.RawMessage {
	if body == "" {
		return json.RawMessage(`{}`)
	}
	if !json.Valid([]byte(body)) {
		log.Fatal().Str("body", body).Msg("--body must be valid JSON")
	}
	return json.RawMessage(body)
}
