// Package extop waits on extended (long-running) cloud operations.
// A single reusable waiter replaces per-resource polling helpers; provider
// SDK handles are adapted to the Operation interface.
package extop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// DefaultLabel names an operation in diagnostics when the caller gives none.
	DefaultLabel = "operation"

	// DefaultTimeout bounds a single wait.
	DefaultTimeout = 300 * time.Second
)

// ErrWaitTimeout is returned when an operation does not reach a terminal
// state within the configured timeout. The server-side work is not cancelled
// and may still complete.
var ErrWaitTimeout = errors.New("extop: wait timed out")

// Warning is a non-fatal notice attached to a finished operation.
type Warning struct {
	Code    string
	Message string
}

// Operation is the capability set the waiter needs from a provider's
// long-running operation handle. Handles transition at most once from
// pending to exactly one of succeeded or failed; the waiter observes,
// never mutates.
//
// Wait blocks until the operation reaches a terminal state. It returns an
// error only for polling or context failures; an operation that terminated
// in failure returns nil from Wait and reports through ErrorCode,
// ErrorMessage and Cause.
type Operation[R any] interface {
	// Name is the server-assigned operation identifier, used only in diagnostics.
	Name() string

	Wait(ctx context.Context) error

	// ErrorCode is non-empty iff the operation terminated in failure.
	ErrorCode() string
	ErrorMessage() string

	// Cause is the provider-specific error carried by a failed operation, if any.
	Cause() error

	// Warnings reports non-fatal notices in the order the server emitted them.
	Warnings() []Warning

	// Result is the outcome payload. Valid only after Wait returns nil.
	Result() R
}

// OperationError reports an operation that terminated in failure without a
// more specific carried cause.
type OperationError struct {
	Code    string
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation failed [Code: %s]: %s", e.Code, e.Message)
}

// Option customizes a single Await call.
type Option func(*settings)

type settings struct {
	label       string
	timeout     time.Duration
	diagnostics io.Writer
}

// WithLabel sets the operation label used in diagnostics. The label has no
// effect on control flow.
func WithLabel(label string) Option {
	return func(s *settings) { s.label = label }
}

// WithTimeout bounds the wait. Zero or negative means wait indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) { s.timeout = timeout }
}

// WithDiagnostics redirects warning and failure lines away from os.Stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(s *settings) { s.diagnostics = w }
}

// Await blocks until op reaches a terminal state or the timeout elapses,
// whichever comes first.
//
// On success it returns the operation's result unchanged; warnings, if any,
// are written to the diagnostic stream first and never cause failure. On
// terminal failure it writes two diagnostic lines and returns the operation's
// carried cause, or an *OperationError when none is attached. On timeout it
// returns an error wrapping ErrWaitTimeout and writes no diagnostics.
func Await[R any](ctx context.Context, op Operation[R], opts ...Option) (R, error) {
	s := settings{
		label:       DefaultLabel,
		timeout:     DefaultTimeout,
		diagnostics: os.Stderr,
	}
	for _, opt := range opts {
		opt(&s)
	}

	var zero R

	waitCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := op.Wait(waitCtx); err != nil {
		// Only the deadline this call added maps to ErrWaitTimeout. A
		// cancelled or expired parent context propagates unchanged.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%s did not finish within %s: %w", s.label, s.timeout, ErrWaitTimeout)
		}
		return zero, err
	}

	if code := op.ErrorCode(); code != "" {
		message := op.ErrorMessage()
		writeLine(s.diagnostics, fmt.Sprintf("Error during %s: [Code: %s]: %s", s.label, code, message))
		writeLine(s.diagnostics, "Operation ID: "+op.Name())
		if cause := op.Cause(); cause != nil {
			return zero, cause
		}
		return zero, &OperationError{Code: code, Message: message}
	}

	if warnings := op.Warnings(); len(warnings) > 0 {
		writeLine(s.diagnostics, fmt.Sprintf("Warnings during %s:", s.label))
		for _, w := range warnings {
			writeLine(s.diagnostics, fmt.Sprintf(" - %s: %s", w.Code, w.Message))
		}
	}

	return op.Result(), nil
}

// writeLine emits one complete line with a single Write call so concurrent
// waiters never interleave partial lines.
func writeLine(w io.Writer, line string) {
	if w == nil {
		return
	}
	_, _ = w.Write([]byte(line + "\n"))
}
