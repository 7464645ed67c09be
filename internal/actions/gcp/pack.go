package gcp

import (
	"io"
	"log/slog"
	"time"

	"github.com/softcane/cloud-action-agent/internal/actions"
	"github.com/softcane/cloud-action-agent/internal/extop"
)

// Pack holds the Compute Engine clients and settings shared by the GCP
// actions.
type Pack struct {
	firewalls   FirewallsAPI
	instances   InstancesAPI
	logger      *slog.Logger
	waitTimeout time.Duration

	// diagnostics overrides the waiter's stderr stream when set.
	diagnostics io.Writer
}

// NewPack creates the GCP action pack. A zero waitTimeout falls back to the
// waiter default.
func NewPack(firewalls FirewallsAPI, instances InstancesAPI, logger *slog.Logger, waitTimeout time.Duration) *Pack {
	if logger == nil {
		logger = slog.Default()
	}
	if waitTimeout <= 0 {
		waitTimeout = extop.DefaultTimeout
	}
	return &Pack{
		firewalls:   firewalls,
		instances:   instances,
		logger:      logger,
		waitTimeout: waitTimeout,
	}
}

// Register adds all GCP actions to the registry.
func (p *Pack) Register(r *actions.Registry) error {
	for _, a := range []*actions.Action{
		{
			Name:        "get_firewall_rules",
			Description: "List all firewall rules in a project.",
			Handler:     actions.Typed(p.listFirewallRules),
		},
		{
			Name:        "create_firewall_rule",
			Description: "Create a firewall rule allowing HTTP and HTTPS traffic.",
			Mutating:    true,
			Handler:     actions.Typed(p.createFirewallRule),
		},
		{
			Name:        "delete_firewall_rule",
			Description: "Delete a firewall rule from a project.",
			Mutating:    true,
			Handler:     actions.Typed(p.deleteFirewallRule),
		},
		{
			Name:        "get_instances",
			Description: "List all compute instances in a zone.",
			Handler:     actions.Typed(p.listInstances),
		},
		{
			Name:        "reset_instance",
			Description: "Reset a compute instance.",
			Mutating:    true,
			Handler:     actions.Typed(p.resetInstance),
		},
	} {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// awaitOpts builds the waiter options for one labeled operation.
func (p *Pack) awaitOpts(label string) []extop.Option {
	opts := []extop.Option{
		extop.WithLabel(label),
		extop.WithTimeout(p.waitTimeout),
	}
	if p.diagnostics != nil {
		opts = append(opts, extop.WithDiagnostics(p.diagnostics))
	}
	return opts
}

// operationSummary is the results payload for actions whose outcome is the
// finished operation itself.
type operationSummary struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
}
