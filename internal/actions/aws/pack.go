package aws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/softcane/cloud-action-agent/internal/actions"
)

// defaultStopWait bounds the instance-stopped waiter.
const defaultStopWait = 300 * time.Second

// Pack holds the AWS clients and settings shared by the EC2 actions.
type Pack struct {
	ec2      EC2API
	pricing  PricingAPI
	region   string
	logger   *slog.Logger
	stopWait time.Duration

	mu         sync.RWMutex
	priceCache map[string]float64 // keyed instanceType:operatingSystem
}

// NewPack creates the AWS action pack. A zero stopWait falls back to the
// default budget.
func NewPack(ec2Client EC2API, pricingClient PricingAPI, region string, logger *slog.Logger, stopWait time.Duration) *Pack {
	if logger == nil {
		logger = slog.Default()
	}
	if stopWait <= 0 {
		stopWait = defaultStopWait
	}
	return &Pack{
		ec2:        ec2Client,
		pricing:    pricingClient,
		region:     region,
		logger:     logger,
		stopWait:   stopWait,
		priceCache: make(map[string]float64),
	}
}

// Register adds all AWS actions to the registry.
func (p *Pack) Register(r *actions.Registry) error {
	for _, a := range []*actions.Action{
		{
			Name:        "aws_list_instances",
			Description: "List EC2 instances, optionally filtered by ID or state.",
			Handler:     actions.Typed(p.listInstances),
		},
		{
			Name:        "aws_reboot_instance",
			Description: "Request a reboot of an EC2 instance.",
			Mutating:    true,
			Handler:     actions.Typed(p.rebootInstance),
		},
		{
			Name:        "aws_stop_instance",
			Description: "Stop an EC2 instance and wait for it to reach the stopped state.",
			Mutating:    true,
			Handler:     actions.Typed(p.stopInstance),
		},
		{
			Name:        "aws_authorize_security_group_ingress",
			Description: "Open an ingress port range on a security group.",
			Mutating:    true,
			Handler:     actions.Typed(p.authorizeSecurityGroupIngress),
		},
		{
			Name:        "aws_get_ondemand_price",
			Description: "Look up the hourly on-demand price of an instance type.",
			Handler:     actions.Typed(p.getOnDemandPrice),
		},
	} {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
