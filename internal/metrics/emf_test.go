package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })
	return &buf
}

func TestNew_HostDimension(t *testing.T) {
	hostOnce.Do(func() {})
	hostName = "capture-01"
	t.Cleanup(func() { hostName = "" })

	r := New("TestNamespace")
	if r.namespace != "TestNamespace" {
		t.Errorf("expected namespace TestNamespace, got %s", r.namespace)
	}
	if r.dimensions["Host"] != "capture-01" {
		t.Errorf("expected Host dimension capture-01, got %s", r.dimensions["Host"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	buf := captureOutput(t)
	hostOnce.Do(func() {})
	hostName = ""

	rec := New(Namespace)
	rec.now = func() time.Time { return time.UnixMilli(1700000000000) }
	rec.Dimension("Endpoint", "/api/tomar_fotos")
	rec.Metric("LatencyMs", 1234.5, UnitMilliseconds)
	rec.Metric("Attempts", 2, UnitCount)
	rec.Property("status", "ok")
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, buf.String())
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if awsMap["Timestamp"] != float64(1700000000000) {
		t.Errorf("unexpected Timestamp %v", awsMap["Timestamp"])
	}

	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, cw["Namespace"])
	}

	if doc["Endpoint"] != "/api/tomar_fotos" {
		t.Errorf("expected Endpoint dimension, got %v", doc["Endpoint"])
	}
	if doc["LatencyMs"] != 1234.5 {
		t.Errorf("expected LatencyMs=1234.5, got %v", doc["LatencyMs"])
	}
	if doc["Attempts"] != float64(2) {
		t.Errorf("expected Attempts=2, got %v", doc["Attempts"])
	}
	if doc["status"] != "ok" {
		t.Errorf("expected status=ok, got %v", doc["status"])
	}
	if n := bytes.Count(buf.Bytes(), []byte("\n")); n != 1 {
		t.Errorf("expected a single line, got %d newlines", n)
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	buf := captureOutput(t)

	New("Test").Flush()

	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_FlushDisabled(t *testing.T) {
	SetOutput(nil)
	if Enabled() {
		t.Fatal("expected output to be disabled")
	}
	// Must not panic without a writer.
	New("Test").Count("Calls").Flush()
}

func TestRecorder_Chaining(t *testing.T) {
	rec := New("Test").
		Dimension("Op", "upload").
		Duration("Latency", 1500*time.Millisecond).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "upload" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Latency"] != float64(1500) || rec.metrics["Latency"].Unit != UnitMilliseconds {
		t.Error("chaining Duration failed")
	}
	if rec.values["Calls"] != float64(1) || rec.metrics["Calls"].Unit != UnitCount {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}
