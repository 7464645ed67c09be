package gcp

import (
	"context"
	"errors"
	"fmt"

	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/iterator"

	"github.com/softcane/cloud-action-agent/internal/extop"
)

// InstancesListRequest asks for all instances in one zone.
type InstancesListRequest struct {
	// ProjectID is the project ID or project number. Required.
	ProjectID string `json:"project_id"`

	// Zone is the zone name, for example "us-west3-b". Required.
	Zone string `json:"zone"`
}

func (r *InstancesListRequest) Validate() error {
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if r.Zone == "" {
		return errors.New("zone is required")
	}
	return nil
}

// InstanceResetRequest names the instance to reset.
type InstanceResetRequest struct {
	// ProjectID is the project ID or project number. Required.
	ProjectID string `json:"project_id"`

	// Zone is the zone the instance runs in. Required.
	Zone string `json:"zone"`

	// InstanceName is the name of the instance to reset. Required.
	InstanceName string `json:"instance_name"`
}

func (r *InstanceResetRequest) Validate() error {
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if r.Zone == "" {
		return errors.New("zone is required")
	}
	if r.InstanceName == "" {
		return errors.New("instance_name is required")
	}
	return nil
}

// instanceSummary is one reshaped instance in a listing.
type instanceSummary struct {
	Name         string `json:"name"`
	ID           uint64 `json:"id"`
	CreationDate string `json:"creation_date"`
	MachineType  string `json:"machine_type"`
	Status       string `json:"status"`
	Zone         string `json:"zone"`
}

func (p *Pack) listInstances(ctx context.Context, req InstancesListRequest) (any, error) {
	p.logger.Debug("listing instances",
		"project_id", req.ProjectID,
		"zone", req.Zone,
	)

	it := p.instances.List(ctx, &computepb.ListInstancesRequest{
		Project: req.ProjectID,
		Zone:    req.Zone,
	})

	instances := []instanceSummary{}
	for {
		inst, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list instances: %w", err)
		}
		instances = append(instances, instanceSummary{
			Name:         inst.GetName(),
			ID:           inst.GetId(),
			CreationDate: inst.GetCreationTimestamp(),
			MachineType:  inst.GetMachineType(),
			Status:       inst.GetStatus(),
			Zone:         inst.GetZone(),
		})
	}

	return instances, nil
}

func (p *Pack) resetInstance(ctx context.Context, req InstanceResetRequest) (any, error) {
	p.logger.Info("resetting instance",
		"project_id", req.ProjectID,
		"zone", req.Zone,
		"instance", req.InstanceName,
	)

	op, err := p.instances.Reset(ctx, &computepb.ResetInstanceRequest{
		Project:  req.ProjectID,
		Zone:     req.Zone,
		Instance: req.InstanceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset instance: %w", err)
	}

	final, err := extop.Await(ctx, op, p.awaitOpts("instance reset")...)
	if err != nil {
		return nil, err
	}

	return operationSummary{
		Operation: final.GetName(),
		Status:    final.GetStatus().String(),
	}, nil
}
