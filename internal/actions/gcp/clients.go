// Package gcp implements the Compute Engine action pack: firewall rule and
// instance operations exposed through the action registry. All API traffic
// goes through the official Compute REST clients; this package only builds
// requests, awaits extended operations and reshapes results.
package gcp

import (
	"context"
	"errors"
	"fmt"

	compute "cloud.google.com/go/compute/apiv1"
	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/option"

	"github.com/softcane/cloud-action-agent/internal/extop"
)

// FirewallIterator pages through firewall rules. Satisfied by
// *compute.FirewallIterator; iteration ends with iterator.Done.
type FirewallIterator interface {
	Next() (*computepb.Firewall, error)
}

// InstanceIterator pages through instances. Satisfied by
// *compute.InstanceIterator.
type InstanceIterator interface {
	Next() (*computepb.Instance, error)
}

// FirewallsAPI is the slice of the Firewalls client the pack uses.
// Mutations return extended operation handles for the waiter.
type FirewallsAPI interface {
	Insert(ctx context.Context, req *computepb.InsertFirewallRequest) (extop.Operation[*computepb.Operation], error)
	Delete(ctx context.Context, req *computepb.DeleteFirewallRequest) (extop.Operation[*computepb.Operation], error)
	Get(ctx context.Context, req *computepb.GetFirewallRequest) (*computepb.Firewall, error)
	List(ctx context.Context, req *computepb.ListFirewallsRequest) FirewallIterator
}

// InstancesAPI is the slice of the Instances client the pack uses.
type InstancesAPI interface {
	Reset(ctx context.Context, req *computepb.ResetInstanceRequest) (extop.Operation[*computepb.Operation], error)
	List(ctx context.Context, req *computepb.ListInstancesRequest) InstanceIterator
}

// Clients bundles the Compute Engine REST clients behind the pack's
// narrow interfaces.
type Clients struct {
	firewalls *compute.FirewallsClient
	instances *compute.InstancesClient
}

// NewClients dials the Compute Engine REST endpoints. Credentials and
// endpoint overrides come in as client options.
func NewClients(ctx context.Context, opts ...option.ClientOption) (*Clients, error) {
	firewalls, err := compute.NewFirewallsRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firewalls client: %w", err)
	}

	instances, err := compute.NewInstancesRESTClient(ctx, opts...)
	if err != nil {
		firewalls.Close()
		return nil, fmt.Errorf("failed to create instances client: %w", err)
	}

	return &Clients{
		firewalls: firewalls,
		instances: instances,
	}, nil
}

// Close releases both underlying clients.
func (c *Clients) Close() error {
	return errors.Join(c.firewalls.Close(), c.instances.Close())
}

// Firewalls returns the firewalls client adapted to FirewallsAPI.
func (c *Clients) Firewalls() FirewallsAPI {
	return firewallsClient{c.firewalls}
}

// Instances returns the instances client adapted to InstancesAPI.
func (c *Clients) Instances() InstancesAPI {
	return instancesClient{c.instances}
}

type firewallsClient struct {
	raw *compute.FirewallsClient
}

func (c firewallsClient) Insert(ctx context.Context, req *computepb.InsertFirewallRequest) (extop.Operation[*computepb.Operation], error) {
	op, err := c.raw.Insert(ctx, req)
	if err != nil {
		return nil, err
	}
	return newOperation(op), nil
}

func (c firewallsClient) Delete(ctx context.Context, req *computepb.DeleteFirewallRequest) (extop.Operation[*computepb.Operation], error) {
	op, err := c.raw.Delete(ctx, req)
	if err != nil {
		return nil, err
	}
	return newOperation(op), nil
}

func (c firewallsClient) Get(ctx context.Context, req *computepb.GetFirewallRequest) (*computepb.Firewall, error) {
	return c.raw.Get(ctx, req)
}

func (c firewallsClient) List(ctx context.Context, req *computepb.ListFirewallsRequest) FirewallIterator {
	return c.raw.List(ctx, req)
}

type instancesClient struct {
	raw *compute.InstancesClient
}

func (c instancesClient) Reset(ctx context.Context, req *computepb.ResetInstanceRequest) (extop.Operation[*computepb.Operation], error) {
	op, err := c.raw.Reset(ctx, req)
	if err != nil {
		return nil, err
	}
	return newOperation(op), nil
}

func (c instancesClient) List(ctx context.Context, req *computepb.ListInstancesRequest) InstanceIterator {
	return c.raw.List(ctx, req)
}
