package extop

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeOperation implements Operation[map[string]any] for tests.
type fakeOperation struct {
	name     string
	delay    time.Duration
	code     string
	message  string
	cause    error
	warnings []Warning
	result   map[string]any
}

func (f *fakeOperation) Name() string { return f.name }

func (f *fakeOperation) Wait(ctx context.Context) error {
	if f.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeOperation) ErrorCode() string      { return f.code }
func (f *fakeOperation) ErrorMessage() string   { return f.message }
func (f *fakeOperation) Cause() error           { return f.cause }
func (f *fakeOperation) Warnings() []Warning    { return f.warnings }
func (f *fakeOperation) Result() map[string]any { return f.result }

// TestAwait_Success verifies a clean operation returns its outcome and
// writes nothing to the diagnostic stream.
func TestAwait_Success(t *testing.T) {
	var diag bytes.Buffer
	op := &fakeOperation{
		name:   "operation-1",
		result: map[string]any{"id": 42},
	}

	result, err := Await[map[string]any](context.Background(), op, WithDiagnostics(&diag))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result["id"] != 42 {
		t.Errorf("expected outcome passed through unchanged, got %v", result)
	}
	if diag.Len() != 0 {
		t.Errorf("expected no diagnostics on clean success, got %q", diag.String())
	}
}

// TestAwait_Warnings verifies warnings are surfaced as one header line plus
// one line per warning, without affecting success.
func TestAwait_Warnings(t *testing.T) {
	var diag bytes.Buffer
	op := &fakeOperation{
		name: "operation-2",
		warnings: []Warning{
			{Code: "DEPRECATED_FIELD", Message: "field X is deprecated"},
		},
		result: map[string]any{"id": 42},
	}

	result, err := Await[map[string]any](context.Background(), op,
		WithLabel("instance reset"),
		WithDiagnostics(&diag),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["id"] != 42 {
		t.Errorf("expected outcome despite warnings, got %v", result)
	}

	want := "Warnings during instance reset:\n - DEPRECATED_FIELD: field X is deprecated\n"
	if diag.String() != want {
		t.Errorf("diagnostics mismatch:\ngot:  %q\nwant: %q", diag.String(), want)
	}
}

// TestAwait_WarningOrder verifies multiple warnings keep server order.
func TestAwait_WarningOrder(t *testing.T) {
	var diag bytes.Buffer
	op := &fakeOperation{
		name: "operation-3",
		warnings: []Warning{
			{Code: "W1", Message: "first"},
			{Code: "W2", Message: "second"},
			{Code: "W3", Message: "third"},
		},
	}

	if _, err := Await[map[string]any](context.Background(), op, WithDiagnostics(&diag)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(diag.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus three warning lines, got %d: %q", len(lines), diag.String())
	}
	for i, want := range []string{" - W1: first", " - W2: second", " - W3: third"} {
		if lines[i+1] != want {
			t.Errorf("line %d: got %q, want %q", i+1, lines[i+1], want)
		}
	}
}

// TestAwait_CarriedCause verifies a failed operation with an attached cause
// surfaces that exact error, not a generic one.
func TestAwait_CarriedCause(t *testing.T) {
	var diag bytes.Buffer
	cause := errors.New("quota exceeded for firewalls")
	op := &fakeOperation{
		name:    "operation-4",
		code:    "QUOTA_EXCEEDED",
		message: "quota exceeded",
		cause:   cause,
	}

	_, err := Await[map[string]any](context.Background(), op, WithDiagnostics(&diag))
	if !errors.Is(err, cause) {
		t.Fatalf("expected carried cause %v, got %v", cause, err)
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		t.Errorf("carried cause must not be wrapped in OperationError, got %v", err)
	}
}

// TestAwait_OperationError verifies a failed operation without a cause yields
// an OperationError carrying the server's code and message, and that the
// diagnostic stream gets exactly two lines naming the label and operation.
func TestAwait_OperationError(t *testing.T) {
	var diag bytes.Buffer
	op := &fakeOperation{
		name:    "operation-1234",
		code:    "RESOURCE_IN_USE",
		message: "in use",
		// Warnings on a failed operation are not reported.
		warnings: []Warning{{Code: "W1", Message: "ignored"}},
	}

	_, err := Await[map[string]any](context.Background(), op,
		WithLabel("firewall rule deletion"),
		WithDiagnostics(&diag),
	)

	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected *OperationError, got %v", err)
	}
	if opErr.Code != "RESOURCE_IN_USE" {
		t.Errorf("expected code RESOURCE_IN_USE, got %q", opErr.Code)
	}
	if opErr.Message != "in use" {
		t.Errorf("expected message %q, got %q", "in use", opErr.Message)
	}

	want := "Error during firewall rule deletion: [Code: RESOURCE_IN_USE]: in use\n" +
		"Operation ID: operation-1234\n"
	if diag.String() != want {
		t.Errorf("diagnostics mismatch:\ngot:  %q\nwant: %q", diag.String(), want)
	}
}

// TestAwait_Timeout verifies an operation that outlives the budget fails with
// ErrWaitTimeout and produces no diagnostic output.
func TestAwait_Timeout(t *testing.T) {
	var diag bytes.Buffer
	op := &fakeOperation{
		name:  "operation-5",
		delay: 500 * time.Millisecond,
	}

	start := time.Now()
	_, err := Await[map[string]any](context.Background(), op,
		WithTimeout(20*time.Millisecond),
		WithDiagnostics(&diag),
	)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("wait did not respect timeout, took %s", elapsed)
	}
	if diag.Len() != 0 {
		t.Errorf("timeout must not write failure diagnostics, got %q", diag.String())
	}
}

// TestAwait_ParentCancellation verifies cancellation of the caller's context
// propagates as-is and is not reported as a timeout.
func TestAwait_ParentCancellation(t *testing.T) {
	op := &fakeOperation{
		name:  "operation-6",
		delay: 500 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Await[map[string]any](ctx, op, WithTimeout(time.Minute))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrWaitTimeout) {
		t.Errorf("parent cancellation must not map to ErrWaitTimeout")
	}
}

// TestAwait_NoTimeout verifies a zero timeout waits past the default budget path.
func TestAwait_NoTimeout(t *testing.T) {
	op := &fakeOperation{
		name:   "operation-7",
		delay:  30 * time.Millisecond,
		result: map[string]any{"done": true},
	}

	result, err := Await[map[string]any](context.Background(), op, WithTimeout(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["done"] != true {
		t.Errorf("expected result after indefinite wait, got %v", result)
	}
}

func TestOperationError_Error(t *testing.T) {
	err := &OperationError{Code: "NOT_FOUND", Message: "no such resource"}
	want := "operation failed [Code: NOT_FOUND]: no such resource"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
