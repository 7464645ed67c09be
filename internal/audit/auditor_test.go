package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newTestAuditor(t *testing.T, sink *bytes.Buffer) *Auditor {
	t.Helper()

	a, err := NewAuditor(sink, Config{SecretKey: "test-secret"}, nil)
	if err != nil {
		t.Fatalf("failed to create auditor: %v", err)
	}
	return a
}

func TestNewAuditor_Validation(t *testing.T) {
	if _, err := NewAuditor(nil, Config{SecretKey: "k"}, nil); err == nil {
		t.Error("expected error for nil sink")
	}
	if _, err := NewAuditor(&bytes.Buffer{}, Config{}, nil); err == nil {
		t.Error("expected error for empty secret key")
	}
}

// TestRecord_AppendsSignedJSONLine verifies one record per invocation, as a
// single JSON line, with a signature that verifies.
func TestRecord_AppendsSignedJSONLine(t *testing.T) {
	var sink bytes.Buffer
	a := newTestAuditor(t, &sink)

	start := time.Now().Add(-2 * time.Second)
	rec, err := a.Record("delete_firewall_rule", []byte(`{"rule_name":"allow-http"}`), "success", start, time.Now())
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(sink.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var stored Record
	if err := json.Unmarshal([]byte(lines[0]), &stored); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if stored.Action != "delete_firewall_rule" || stored.Status != "success" {
		t.Errorf("unexpected record: %+v", stored)
	}
	if stored.Signature != rec.Signature {
		t.Error("stored signature differs from the returned record")
	}
	if !a.Verify(&stored) {
		t.Error("stored record should verify")
	}
}

// TestRecord_HashesInput verifies the request body is never stored verbatim.
func TestRecord_HashesInput(t *testing.T) {
	var sink bytes.Buffer
	a := newTestAuditor(t, &sink)

	input := []byte(`{"secret_param":"hunter2"}`)
	if _, err := a.Record("reset_instance", input, "error", time.Now(), time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if strings.Contains(sink.String(), "hunter2") {
		t.Error("audit log must not contain raw input")
	}
	var stored Record
	if err := json.Unmarshal(sink.Bytes(), &stored); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if len(stored.InputSHA256) != 64 {
		t.Errorf("expected a hex SHA-256 digest, got %q", stored.InputSHA256)
	}
}

// TestVerify_DetectsTampering verifies any field change breaks the signature.
func TestVerify_DetectsTampering(t *testing.T) {
	var sink bytes.Buffer
	a := newTestAuditor(t, &sink)

	rec, err := a.Record("kube_drain_node", []byte(`{"node_name":"n1"}`), "success", time.Now(), time.Now())
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	tampered := *rec
	tampered.Status = "error"
	if a.Verify(&tampered) {
		t.Error("tampered record should not verify")
	}

	other, err := NewAuditor(&bytes.Buffer{}, Config{SecretKey: "different"}, nil)
	if err != nil {
		t.Fatalf("failed to create auditor: %v", err)
	}
	if other.Verify(rec) {
		t.Error("record should not verify under a different key")
	}
}
