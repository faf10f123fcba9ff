package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStartupLoggerEmitsSingleEvent(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	origLevel := zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = orig
		zerolog.SetGlobalLevel(origLevel)
	})

	NewStartupLogger("dni-capture").
		Version("1.2.0").
		Endpoint("api", "https://api.tudominio.com").
		Endpoint("una", "").
		S3Bucket("history", "").
		DynamoTable("history", "dni-history").
		Feature("metrics", true).
		Config("storage", "dynamodb").
		Log()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("expected one JSON event, got %q: %v", buf.String(), err)
	}

	app := doc["app"].(map[string]any)
	if app["name"] != "dni-capture" || app["version"] != "1.2.0" {
		t.Errorf("unexpected app block: %v", app)
	}

	resources := doc["resources"].(map[string]any)
	endpoints := resources["endpoints"].(map[string]any)
	if _, ok := endpoints["una"]; ok {
		t.Error("empty endpoint should be omitted")
	}
	if _, ok := resources["s3Buckets"]; ok {
		t.Error("empty bucket map should be omitted")
	}
	if resources["dynamoTables"].(map[string]any)["history"] != "dni-history" {
		t.Errorf("unexpected dynamo tables: %v", resources["dynamoTables"])
	}
	if doc["features"].(map[string]any)["metrics"] != true {
		t.Errorf("unexpected features: %v", doc["features"])
	}
}
