package kube

import (
	"context"
	"fmt"

	"github.com/softcane/cloud-action-agent/internal/metrics"
)

// NodeUtilizationRequest asks for current node utilization. The node filter
// is optional; empty means every node Prometheus has samples for.
type NodeUtilizationRequest struct {
	Node string `json:"node"`
}

func (p *Pack) nodeUtilization(ctx context.Context, req NodeUtilizationRequest) (any, error) {
	usage, err := p.prom.GetNodeUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query node utilization: %w", err)
	}

	if req.Node == "" {
		return usage, nil
	}
	for _, u := range usage {
		if u.Node == req.Node {
			return []metrics.NodeUsage{u}, nil
		}
	}
	return nil, fmt.Errorf("no utilization samples for node %s", req.Node)
}
