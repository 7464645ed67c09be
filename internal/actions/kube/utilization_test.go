package kube

import (
	"context"
	"strings"
	"testing"
	"time"

	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/softcane/cloud-action-agent/internal/actions"
	"github.com/softcane/cloud-action-agent/internal/metrics"
)

type fakePromAPI struct {
	v1.API
	err error
}

func (f *fakePromAPI) Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	if strings.Contains(query, "node_cpu_seconds_total") {
		return model.Vector{
			{Metric: model.Metric{"node": "worker-1"}, Value: 35.0},
			{Metric: model.Metric{"node": "worker-2"}, Value: 80.5},
		}, nil, nil
	}
	return model.Vector{
		{Metric: model.Metric{"node": "worker-1"}, Value: 52.0},
		{Metric: model.Metric{"node": "worker-2"}, Value: 61.3},
	}, nil, nil
}

func newUtilizationRegistry(t *testing.T, api v1.API) *actions.Registry {
	t.Helper()

	prom, err := metrics.NewClient(metrics.ClientConfig{API: api})
	if err != nil {
		t.Fatalf("failed to build prometheus client: %v", err)
	}

	reg := actions.NewRegistry()
	pack := NewPack(fake.NewSimpleClientset(), prom, nil)
	if err := pack.Register(reg); err != nil {
		t.Fatalf("failed to register pack: %v", err)
	}
	return reg
}

// TestNodeUtilization verifies the action merges CPU and memory samples per
// node.
func TestNodeUtilization(t *testing.T) {
	reg := newUtilizationRegistry(t, &fakePromAPI{})

	out, err := invoke(t, reg, "kube_node_utilization", `{}`)
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}

	usage, ok := out.([]metrics.NodeUsage)
	if !ok {
		t.Fatalf("unexpected result type %T", out)
	}
	if len(usage) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(usage))
	}
	if usage[0].Node != "worker-1" || usage[0].CPUUsagePercent != 35.0 || usage[0].MemoryUsagePercent != 52.0 {
		t.Errorf("unexpected first node: %+v", usage[0])
	}
}

func TestNodeUtilization_FilterByNode(t *testing.T) {
	reg := newUtilizationRegistry(t, &fakePromAPI{})

	out, err := invoke(t, reg, "kube_node_utilization", `{"node":"worker-2"}`)
	if err != nil {
		t.Fatalf("action failed: %v", err)
	}

	usage := out.([]metrics.NodeUsage)
	if len(usage) != 1 || usage[0].Node != "worker-2" {
		t.Errorf("expected only worker-2, got %+v", usage)
	}
}

func TestNodeUtilization_UnknownNode(t *testing.T) {
	reg := newUtilizationRegistry(t, &fakePromAPI{})

	_, err := invoke(t, reg, "kube_node_utilization", `{"node":"worker-9"}`)
	if err == nil || !strings.Contains(err.Error(), "no utilization samples") {
		t.Fatalf("expected missing-node error, got %v", err)
	}
}

func TestNodeUtilization_RegisteredWithClient(t *testing.T) {
	reg := newUtilizationRegistry(t, &fakePromAPI{})

	a, ok := reg.Get("kube_node_utilization")
	if !ok {
		t.Fatal("utilization action should register with a prometheus client")
	}
	if a.Mutating {
		t.Error("utilization action is read-only")
	}
}
