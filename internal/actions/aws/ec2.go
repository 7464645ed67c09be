package aws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

var validInstanceStates = map[string]bool{
	"pending":       true,
	"running":       true,
	"shutting-down": true,
	"terminated":    true,
	"stopping":      true,
	"stopped":       true,
}

// InstancesListRequest filters the instance listing. All fields are optional.
type InstancesListRequest struct {
	// InstanceIDs restricts the listing to the given instances.
	InstanceIDs []string `json:"instance_ids"`

	// States restricts the listing to instances in the given lifecycle
	// states, for example "running" or "stopped".
	States []string `json:"states"`
}

func (r *InstancesListRequest) Validate() error {
	for _, state := range r.States {
		if !validInstanceStates[state] {
			return fmt.Errorf("unknown instance state %q", state)
		}
	}
	return nil
}

// InstanceRebootRequest names the instance to reboot.
type InstanceRebootRequest struct {
	// InstanceID is the EC2 instance ID. Required.
	InstanceID string `json:"instance_id"`
}

func (r *InstanceRebootRequest) Validate() error {
	if r.InstanceID == "" {
		return errors.New("instance_id is required")
	}
	return nil
}

// InstanceStopRequest names the instance to stop.
type InstanceStopRequest struct {
	// InstanceID is the EC2 instance ID. Required.
	InstanceID string `json:"instance_id"`

	// Force stops the instance without an OS shutdown.
	Force bool `json:"force"`

	// Wait blocks until the instance reaches the stopped state.
	// Defaults to true.
	Wait *bool `json:"wait"`
}

func (r *InstanceStopRequest) Validate() error {
	if r.InstanceID == "" {
		return errors.New("instance_id is required")
	}
	if r.Wait == nil {
		wait := true
		r.Wait = &wait
	}
	return nil
}

// SecurityGroupIngressRequest opens an ingress port range on a group.
type SecurityGroupIngressRequest struct {
	// GroupID is the security group ID. Required.
	GroupID string `json:"group_id"`

	// Protocol is tcp or udp. Defaults to tcp.
	Protocol string `json:"protocol"`

	// FromPort is the low end of the port range. Defaults to ToPort.
	FromPort int32 `json:"from_port"`

	// ToPort is the high end of the port range. Required.
	ToPort int32 `json:"to_port"`

	// CIDRBlocks are the source ranges to allow. Defaults to ["0.0.0.0/0"].
	CIDRBlocks []string `json:"cidr_blocks"`
}

func (r *SecurityGroupIngressRequest) Validate() error {
	if r.GroupID == "" {
		return errors.New("group_id is required")
	}

	if r.Protocol == "" {
		r.Protocol = "tcp"
	}
	if r.Protocol != "tcp" && r.Protocol != "udp" {
		return fmt.Errorf("protocol must be tcp or udp, got %q", r.Protocol)
	}

	if r.ToPort < 1 || r.ToPort > 65535 {
		return errors.New("to_port must be between 1 and 65535")
	}
	if r.FromPort == 0 {
		r.FromPort = r.ToPort
	}
	if r.FromPort < 1 || r.FromPort > r.ToPort {
		return fmt.Errorf("from_port %d is outside 1..to_port", r.FromPort)
	}

	if len(r.CIDRBlocks) == 0 {
		r.CIDRBlocks = []string{"0.0.0.0/0"}
	}
	for _, cidr := range r.CIDRBlocks {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("cidr block %q is not a valid CIDR: %v", cidr, err)
		}
	}
	return nil
}

// instanceSummary is one reshaped instance in a listing.
type instanceSummary struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	State      string `json:"state"`
	Zone       string `json:"zone"`
	LaunchTime string `json:"launch_time"`
	PrivateIP  string `json:"private_ip"`
	PublicIP   string `json:"public_ip"`
}

type rebootSummary struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
}

type stopSummary struct {
	InstanceID    string `json:"instance_id"`
	PreviousState string `json:"previous_state"`
	CurrentState  string `json:"current_state"`
}

type ingressSummary struct {
	GroupID string   `json:"group_id"`
	RuleIDs []string `json:"rule_ids"`
}

func (p *Pack) listInstances(ctx context.Context, req InstancesListRequest) (any, error) {
	p.logger.Debug("listing instances",
		"region", p.region,
		"instance_ids", req.InstanceIDs,
		"states", req.States,
	)

	input := &ec2.DescribeInstancesInput{
		InstanceIds: req.InstanceIDs,
	}
	if len(req.States) > 0 {
		input.Filters = []types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: req.States,
			},
		}
	}

	summaries := []instanceSummary{}
	paginator := ec2.NewDescribeInstancesPaginator(p.ec2, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				summaries = append(summaries, reshapeInstance(inst))
			}
		}
	}

	return summaries, nil
}

func reshapeInstance(inst types.Instance) instanceSummary {
	summary := instanceSummary{
		ID:        aws.ToString(inst.InstanceId),
		Type:      string(inst.InstanceType),
		PrivateIP: aws.ToString(inst.PrivateIpAddress),
		PublicIP:  aws.ToString(inst.PublicIpAddress),
	}
	if inst.State != nil {
		summary.State = string(inst.State.Name)
	}
	if inst.Placement != nil {
		summary.Zone = aws.ToString(inst.Placement.AvailabilityZone)
	}
	if inst.LaunchTime != nil {
		summary.LaunchTime = inst.LaunchTime.Format(time.RFC3339)
	}
	return summary
}

func (p *Pack) rebootInstance(ctx context.Context, req InstanceRebootRequest) (any, error) {
	p.logger.Info("rebooting instance",
		"region", p.region,
		"instance_id", req.InstanceID,
	)

	// RebootInstances is asynchronous on the AWS side with no operation
	// handle to wait on.
	_, err := p.ec2.RebootInstances(ctx, &ec2.RebootInstancesInput{
		InstanceIds: []string{req.InstanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reboot instance: %w", err)
	}

	return rebootSummary{
		InstanceID: req.InstanceID,
		Status:     "reboot-requested",
	}, nil
}

func (p *Pack) stopInstance(ctx context.Context, req InstanceStopRequest) (any, error) {
	p.logger.Info("stopping instance",
		"region", p.region,
		"instance_id", req.InstanceID,
		"force", req.Force,
		"wait", *req.Wait,
	)

	out, err := p.ec2.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{req.InstanceID},
		Force:       aws.Bool(req.Force),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stop instance: %w", err)
	}

	summary := stopSummary{InstanceID: req.InstanceID}
	if len(out.StoppingInstances) > 0 {
		change := out.StoppingInstances[0]
		if change.PreviousState != nil {
			summary.PreviousState = string(change.PreviousState.Name)
		}
		if change.CurrentState != nil {
			summary.CurrentState = string(change.CurrentState.Name)
		}
	}

	if *req.Wait {
		waiter := ec2.NewInstanceStoppedWaiter(p.ec2)
		describe := &ec2.DescribeInstancesInput{InstanceIds: []string{req.InstanceID}}
		if err := waiter.Wait(ctx, describe, p.stopWait); err != nil {
			return nil, fmt.Errorf("instance %s did not reach stopped state: %w", req.InstanceID, err)
		}
		summary.CurrentState = string(types.InstanceStateNameStopped)
	}

	return summary, nil
}

func (p *Pack) authorizeSecurityGroupIngress(ctx context.Context, req SecurityGroupIngressRequest) (any, error) {
	p.logger.Info("authorizing security group ingress",
		"region", p.region,
		"group_id", req.GroupID,
		"protocol", req.Protocol,
		"from_port", req.FromPort,
		"to_port", req.ToPort,
		"cidr_blocks", req.CIDRBlocks,
	)

	permission := types.IpPermission{
		IpProtocol: aws.String(req.Protocol),
		FromPort:   aws.Int32(req.FromPort),
		ToPort:     aws.Int32(req.ToPort),
	}
	for _, cidr := range req.CIDRBlocks {
		permission.IpRanges = append(permission.IpRanges, types.IpRange{
			CidrIp: aws.String(cidr),
		})
	}

	out, err := p.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(req.GroupID),
		IpPermissions: []types.IpPermission{permission},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authorize ingress: %w", err)
	}

	ruleIDs := []string{}
	for _, rule := range out.SecurityGroupRules {
		ruleIDs = append(ruleIDs, aws.ToString(rule.SecurityGroupRuleId))
	}

	return ingressSummary{
		GroupID: req.GroupID,
		RuleIDs: ruleIDs,
	}, nil
}
