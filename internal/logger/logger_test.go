package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "lazyimg-test"})

	log.WithComponent("prefetch").WithField(FieldURL, "/a.jpg").Info("fetched")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["message"] != "fetched" {
		t.Errorf("expected message %q, got %v", "fetched", line["message"])
	}
	if line["service"] != "lazyimg-test" {
		t.Errorf("expected service tag, got %v", line["service"])
	}
	if line[FieldComponent] != "prefetch" {
		t.Errorf("expected component field, got %v", line[FieldComponent])
	}
	if line[FieldURL] != "/a.jpg" {
		t.Errorf("expected url field, got %v", line[FieldURL])
	}
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "loud", Output: &buf})

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line should be filtered at info level, got %q", buf.String())
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "info", Output: &buf})

	ctx := base.WithContext(context.Background())
	ctx = SetRequestID(ctx, "req-1")

	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("expected request id req-1, got %q", got)
	}

	With(Fields{FieldCount: 3}).Info(ctx, "swept %d listeners", 3)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line[FieldRequestID] != "req-1" {
		t.Errorf("expected request_id to propagate, got %v", line[FieldRequestID])
	}
	if line[FieldCount] != float64(3) {
		t.Errorf("expected count=3, got %v", line[FieldCount])
	}
}

func TestFromContext_NilFallsBackToDefault(t *testing.T) {
	if FromContext(nil) != GetDefault() {
		t.Error("expected default logger for nil context")
	}
}
