// Package dispatch routes action invocations from the HTTP API and the NATS
// consumer through policy checks, dry-run gating, and metrics to the
// registered handlers.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/softcane/cloud-action-agent/internal/actions"
	"github.com/softcane/cloud-action-agent/internal/audit"
	"github.com/softcane/cloud-action-agent/internal/metrics"
	"github.com/softcane/cloud-action-agent/internal/policy"
)

// ErrBlockedByDryRun is returned when dry-run mode blocks a mutating action.
var ErrBlockedByDryRun = errors.New("dispatch: blocked by dry-run")

// Config wires a Dispatcher.
type Config struct {
	Registry *actions.Registry
	Policy   *policy.Engine
	Logger   *slog.Logger

	// Auditor, when set, records every mutating invocation.
	Auditor *audit.Auditor

	// DryRun blocks every mutating action. Read-only actions still run.
	DryRun bool
}

// Dispatcher executes actions by name, enforcing policy and dry-run rules
// and recording metrics around every invocation.
type Dispatcher struct {
	registry *actions.Registry
	policy   *policy.Engine
	logger   *slog.Logger
	auditor  *audit.Auditor
	dryRun   bool
}

// New creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("dispatch: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		policy:   cfg.Policy,
		logger:   logger,
		auditor:  cfg.Auditor,
		dryRun:   cfg.DryRun,
	}, nil
}

// Actions returns the registered actions sorted by name.
func (d *Dispatcher) Actions() []*actions.Action {
	return d.registry.List()
}

// Dispatch runs the named action against the raw JSON input. Handler errors
// propagate unchanged so callers can inspect them with errors.Is.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, input json.RawMessage) (*actions.Result, error) {
	a, ok := d.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", actions.ErrUnknownAction, name)
	}

	if d.dryRun && a.Mutating {
		d.logger.Info("dry-run mode blocked mutating action", "action", name)
		return nil, fmt.Errorf("%w: %s", ErrBlockedByDryRun, name)
	}

	if err := d.checkPolicy(name, input); err != nil {
		metrics.PolicyDenials.WithLabelValues(name).Inc()
		return nil, err
	}

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	start := time.Now()
	out, err := a.Handler(ctx, input)
	elapsed := time.Since(start)

	if err != nil {
		status := "error"
		if errors.Is(err, actions.ErrInvalidInput) {
			status = "invalid"
		}
		d.recordAudit(a, input, status, start)
		metrics.ObserveInvocation(name, status, elapsed.Seconds())
		d.logger.Error("action failed",
			"action", name,
			"duration", elapsed.Round(time.Millisecond).String(),
			"error", err,
		)
		return nil, err
	}

	d.recordAudit(a, input, "success", start)
	metrics.ObserveInvocation(name, "success", elapsed.Seconds())
	d.logger.Info("action complete",
		"action", name,
		"duration", elapsed.Round(time.Millisecond).String(),
	)
	return &actions.Result{Success: true, Results: out}, nil
}

// recordAudit appends a signed record for a completed mutating invocation.
// A write failure is logged, never surfaced; the action already ran.
func (d *Dispatcher) recordAudit(a *actions.Action, input json.RawMessage, status string, start time.Time) {
	if d.auditor == nil || !a.Mutating {
		return
	}
	if _, err := d.auditor.Record(a.Name, input, status, start, time.Now()); err != nil {
		d.logger.Warn("failed to write audit record",
			"action", a.Name,
			"error", err,
		)
	}
}

// checkPolicy evaluates the deny rules against the decoded request
// parameters. A payload that is not a JSON object carries no parameters to
// match on; the handler rejects it later.
func (d *Dispatcher) checkPolicy(name string, input json.RawMessage) error {
	if d.policy == nil || d.policy.Len() == 0 {
		return nil
	}
	params := map[string]interface{}{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			params = map[string]interface{}{}
		}
	}
	return d.policy.Check(name, params)
}
