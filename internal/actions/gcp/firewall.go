package gcp

import (
	"context"
	"errors"
	"fmt"
	"net"

	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/proto"

	"github.com/softcane/cloud-action-agent/internal/extop"
)

const (
	// defaultNetwork receives rules whose creation request names no network.
	defaultNetwork = "global/networks/default"

	// firewallDescription is attached to every rule this pack creates.
	firewallDescription = "Allowing TCP traffic on port 80 and 443 from Internet."
)

// FirewallRuleListRequest asks for all firewall rules in a project.
type FirewallRuleListRequest struct {
	// ProjectID is the project ID or project number. Required.
	ProjectID string `json:"project_id"`
}

func (r *FirewallRuleListRequest) Validate() error {
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	return nil
}

// FirewallRuleCreationRequest describes the HTTP/HTTPS allow rule to create.
type FirewallRuleCreationRequest struct {
	// FirewallRuleName is the name of the rule to create. Required.
	FirewallRuleName string `json:"firewall_rule_name"`

	// ProjectID is the project ID or project number. Required.
	ProjectID string `json:"project_id"`

	// Direction is INGRESS or EGRESS. Defaults to INGRESS.
	Direction string `json:"direction"`

	// SourceRanges are the CIDR ranges the rule applies to.
	// Defaults to ["0.0.0.0/0"].
	SourceRanges []string `json:"source_ranges"`

	// Network is the network the rule attaches to, in any of the formats
	// the Compute API accepts. Defaults to the project's default network.
	Network string `json:"network"`
}

func (r *FirewallRuleCreationRequest) Validate() error {
	if r.FirewallRuleName == "" {
		return errors.New("firewall_rule_name is required")
	}
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}

	if r.Direction == "" {
		r.Direction = computepb.Firewall_INGRESS.String()
	}
	if r.Direction != computepb.Firewall_INGRESS.String() && r.Direction != computepb.Firewall_EGRESS.String() {
		return fmt.Errorf("direction must be INGRESS or EGRESS, got %q", r.Direction)
	}

	if len(r.SourceRanges) == 0 {
		r.SourceRanges = []string{"0.0.0.0/0"}
	}
	for _, cidr := range r.SourceRanges {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("source range %q is not a valid CIDR: %v", cidr, err)
		}
	}

	if r.Network == "" {
		r.Network = defaultNetwork
	}
	return nil
}

// FirewallRuleDeletionRequest names the firewall rule to delete.
type FirewallRuleDeletionRequest struct {
	// RuleName is the name of the rule to delete. Required.
	RuleName string `json:"rule_name"`

	// ProjectID is the project ID or project number. Required.
	ProjectID string `json:"project_id"`
}

func (r *FirewallRuleDeletionRequest) Validate() error {
	if r.RuleName == "" {
		return errors.New("rule_name is required")
	}
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	return nil
}

// firewallSummary is one reshaped firewall rule in a listing.
type firewallSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ID          uint64 `json:"id"`
	Direction   string `json:"direction"`
	Network     string `json:"network"`
}

// firewallCreationSummary reshapes the rule read back after creation.
type firewallCreationSummary struct {
	ID           uint64   `json:"id"`
	Name         string   `json:"name"`
	SourceRanges []string `json:"source_ranges"`
}

func (p *Pack) listFirewallRules(ctx context.Context, req FirewallRuleListRequest) (any, error) {
	p.logger.Debug("listing firewall rules", "project_id", req.ProjectID)

	it := p.firewalls.List(ctx, &computepb.ListFirewallsRequest{
		Project: req.ProjectID,
	})

	rules := []firewallSummary{}
	for {
		fw, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list firewall rules: %w", err)
		}
		rules = append(rules, firewallSummary{
			Name:        fw.GetName(),
			Description: fw.GetDescription(),
			ID:          fw.GetId(),
			Direction:   fw.GetDirection(),
			Network:     fw.GetNetwork(),
		})
	}

	return rules, nil
}

func (p *Pack) createFirewallRule(ctx context.Context, req FirewallRuleCreationRequest) (any, error) {
	p.logger.Info("creating firewall rule",
		"project_id", req.ProjectID,
		"name", req.FirewallRuleName,
		"direction", req.Direction,
		"source_ranges", req.SourceRanges,
	)

	rule := &computepb.Firewall{
		Name:      proto.String(req.FirewallRuleName),
		Direction: proto.String(req.Direction),
		Allowed: []*computepb.Allowed{
			{
				IPProtocol: proto.String("tcp"),
				Ports:      []string{"80", "443"},
			},
		},
		SourceRanges: req.SourceRanges,
		Network:      proto.String(req.Network),
		Description:  proto.String(firewallDescription),
		TargetTags:   []string{"web"},
	}

	op, err := p.firewalls.Insert(ctx, &computepb.InsertFirewallRequest{
		Project:          req.ProjectID,
		FirewallResource: rule,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert firewall rule: %w", err)
	}

	if _, err := extop.Await(ctx, op, p.awaitOpts("firewall rule creation")...); err != nil {
		return nil, err
	}

	created, err := p.firewalls.Get(ctx, &computepb.GetFirewallRequest{
		Project:  req.ProjectID,
		Firewall: req.FirewallRuleName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read back firewall rule: %w", err)
	}

	return firewallCreationSummary{
		ID:           created.GetId(),
		Name:         created.GetName(),
		SourceRanges: created.GetSourceRanges(),
	}, nil
}

func (p *Pack) deleteFirewallRule(ctx context.Context, req FirewallRuleDeletionRequest) (any, error) {
	p.logger.Info("deleting firewall rule",
		"project_id", req.ProjectID,
		"name", req.RuleName,
	)

	op, err := p.firewalls.Delete(ctx, &computepb.DeleteFirewallRequest{
		Project:  req.ProjectID,
		Firewall: req.RuleName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete firewall rule: %w", err)
	}

	final, err := extop.Await(ctx, op, p.awaitOpts("firewall rule deletion")...)
	if err != nil {
		return nil, err
	}

	return operationSummary{
		Operation: final.GetName(),
		Status:    final.GetStatus().String(),
	}, nil
}
