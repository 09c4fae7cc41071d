package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Configure(Options{Level: level, Format: "json", Output: buf})
	t.Cleanup(func() { Configure(Options{}) })
	return buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	return m
}

func TestComponentAndJobFields(t *testing.T) {
	buf := capture(t, "info")
	Component("pipeline").WithJob("job-1").Info("started")

	m := decode(t, buf)
	if m["component"] != "pipeline" || m["job_id"] != "job-1" || m["msg"] != "started" {
		t.Errorf("unexpected fields: %v", m)
	}
}

func TestWithSectionKeepsComponent(t *testing.T) {
	buf := capture(t, "info")
	var log *Logger = Component("section-processor").WithSection("job-2", 3)
	log.WithError(errors.New("boom")).Warn("analyzer failed")

	m := decode(t, buf)
	if m["component"] != "section-processor" || m["job_id"] != "job-2" || m["section"] != float64(3) {
		t.Errorf("unexpected fields: %v", m)
	}
	if m["error"] != "boom" {
		t.Errorf("error field = %v", m["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "warn")
	New().Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info line written at warn level: %q", buf.String())
	}
	New().Warn("shown")
	if buf.Len() == 0 {
		t.Error("warn line missing")
	}
}

func TestWithError(t *testing.T) {
	buf := capture(t, "debug")
	New().WithError(errors.New("boom")).Error("failed")
	if decode(t, buf)["error"] != "boom" {
		t.Errorf("error field missing: %q", buf.String())
	}

	l := New()
	if l.WithError(nil) != l.Entry {
		t.Error("nil error should return the base entry")
	}
}

func TestWithRequest(t *testing.T) {
	buf := capture(t, "info")
	r := httptest.NewRequest("GET", "/jobs/1", nil)
	r.Header.Set("X-Request-ID", "req-7")
	New().WithRequest(r).Info("request")

	m := decode(t, buf)
	if m["req_id"] != "req-7" || m["path"] != "/jobs/1" || m["method"] != "GET" {
		t.Errorf("unexpected request fields: %v", m)
	}
}
