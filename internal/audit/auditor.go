// Package audit produces tamper-evident records of mutating action
// invocations.
//
// Records are HMAC-signed and appended as JSON lines, so an operator can
// verify after the fact that the log was not altered.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Record is one signed invocation entry. The request body is stored as a
// hash only; parameters may carry sensitive values.
type Record struct {
	Action      string    `json:"action"`
	InputSHA256 string    `json:"input_sha256"`
	Status      string    `json:"status"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Signature   string    `json:"signature"`
}

// Config for the Auditor
type Config struct {
	SecretKey string // HMAC key for signing records
}

// Auditor signs invocation records and appends them to the sink.
type Auditor struct {
	config Config
	logger *slog.Logger

	mu   sync.Mutex
	sink io.Writer
}

// NewAuditor creates an auditor appending JSON lines to sink.
func NewAuditor(sink io.Writer, config Config, logger *slog.Logger) (*Auditor, error) {
	if sink == nil {
		return nil, errors.New("audit: sink is required")
	}
	if config.SecretKey == "" {
		return nil, errors.New("audit: secret key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		config: config,
		logger: logger,
		sink:   sink,
	}, nil
}

// Record signs and appends one entry for a completed invocation.
func (a *Auditor) Record(action string, input []byte, status string, start, end time.Time) (*Record, error) {
	rec := &Record{
		Action:      action,
		InputSHA256: hashInput(input),
		Status:      status,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
	}
	rec.Signature = a.sign(rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit record: %w", err)
	}

	a.mu.Lock()
	_, err = a.sink.Write(append(data, '\n'))
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to append audit record: %w", err)
	}

	a.logger.Debug("audit record appended",
		"action", action,
		"status", status,
	)
	return rec, nil
}

// sign creates HMAC-SHA256 signature
func (a *Auditor) sign(r *Record) string {
	// Create deterministic payload
	payload := fmt.Sprintf("%s|%s|%s|%s|%s",
		r.Action,
		r.InputSHA256,
		r.Status,
		r.StartTime.UTC().Format(time.RFC3339Nano),
		r.EndTime.UTC().Format(time.RFC3339Nano),
	)

	h := hmac.New(sha256.New, []byte(a.config.SecretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks if a record signature is valid
func (a *Auditor) Verify(r *Record) bool {
	expected := a.sign(r)
	return hmac.Equal([]byte(expected), []byte(r.Signature))
}

func hashInput(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}
