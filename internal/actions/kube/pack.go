package kube

import (
	"log/slog"

	"k8s.io/client-go/kubernetes"

	"github.com/softcane/cloud-action-agent/internal/actions"
	"github.com/softcane/cloud-action-agent/internal/metrics"
)

// Pack holds the clients shared by the Kubernetes node actions. The
// Prometheus client is optional; without it the utilization action is not
// registered.
type Pack struct {
	client kubernetes.Interface
	prom   *metrics.Client
	logger *slog.Logger
}

// NewPack creates the Kubernetes action pack.
func NewPack(client kubernetes.Interface, prom *metrics.Client, logger *slog.Logger) *Pack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pack{
		client: client,
		prom:   prom,
		logger: logger,
	}
}

// Register adds all Kubernetes actions to the registry.
func (p *Pack) Register(r *actions.Registry) error {
	list := []*actions.Action{
		{
			Name:        "kube_list_nodes",
			Description: "List cluster nodes with readiness and scheduling state.",
			Handler:     actions.Typed(p.listNodes),
		},
		{
			Name:        "kube_cordon_node",
			Description: "Mark a node unschedulable.",
			Mutating:    true,
			Handler:     actions.Typed(p.cordonNode),
		},
		{
			Name:        "kube_uncordon_node",
			Description: "Mark a node schedulable again.",
			Mutating:    true,
			Handler:     actions.Typed(p.uncordonNode),
		},
		{
			Name:        "kube_drain_node",
			Description: "Cordon a node and evict its pods through the Eviction API.",
			Mutating:    true,
			Handler:     actions.Typed(p.drainNode),
		},
	}
	if p.prom != nil {
		list = append(list, &actions.Action{
			Name:        "kube_node_utilization",
			Description: "Report node CPU and memory utilization from Prometheus.",
			Handler:     actions.Typed(p.nodeUtilization),
		})
	}

	for _, a := range list {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
