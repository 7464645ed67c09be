package kube

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NodeListRequest filters the node listing. All fields are optional.
type NodeListRequest struct {
	// LabelSelector restricts the listing, in the usual selector syntax,
	// for example "karpenter.sh/capacity-type=spot".
	LabelSelector string `json:"label_selector"`
}

// NodeCordonRequest names the node to cordon or uncordon.
type NodeCordonRequest struct {
	// NodeName is the node to act on. Required.
	NodeName string `json:"node_name"`
}

func (r *NodeCordonRequest) Validate() error {
	if r.NodeName == "" {
		return errors.New("node_name is required")
	}
	return nil
}

// nodeSummary is one reshaped node in a listing.
type nodeSummary struct {
	Name           string `json:"name"`
	Ready          bool   `json:"ready"`
	Unschedulable  bool   `json:"unschedulable"`
	KubeletVersion string `json:"kubelet_version"`
	InstanceType   string `json:"instance_type"`
	Zone           string `json:"zone"`
	InternalIP     string `json:"internal_ip"`
	Created        string `json:"created"`
}

type cordonSummary struct {
	NodeName      string `json:"node_name"`
	Unschedulable bool   `json:"unschedulable"`
	Changed       bool   `json:"changed"`
}

func (p *Pack) listNodes(ctx context.Context, req NodeListRequest) (any, error) {
	p.logger.Debug("listing nodes", "label_selector", req.LabelSelector)

	nodeList, err := p.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		LabelSelector: req.LabelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	nodes := []nodeSummary{}
	for i := range nodeList.Items {
		nodes = append(nodes, reshapeNode(&nodeList.Items[i]))
	}
	return nodes, nil
}

func reshapeNode(node *corev1.Node) nodeSummary {
	summary := nodeSummary{
		Name:           node.Name,
		Unschedulable:  node.Spec.Unschedulable,
		KubeletVersion: node.Status.NodeInfo.KubeletVersion,
		InstanceType:   node.Labels[corev1.LabelInstanceTypeStable],
		Zone:           node.Labels[corev1.LabelTopologyZone],
		Created:        node.CreationTimestamp.UTC().Format(time.RFC3339),
	}
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			summary.Ready = cond.Status == corev1.ConditionTrue
			break
		}
	}
	for _, addr := range node.Status.Addresses {
		if addr.Type == corev1.NodeInternalIP {
			summary.InternalIP = addr.Address
			break
		}
	}
	return summary
}

func (p *Pack) cordonNode(ctx context.Context, req NodeCordonRequest) (any, error) {
	p.logger.Info("cordoning node", "node", req.NodeName)

	changed, err := p.setUnschedulable(ctx, req.NodeName, true)
	if err != nil {
		return nil, fmt.Errorf("failed to cordon node: %w", err)
	}
	return cordonSummary{NodeName: req.NodeName, Unschedulable: true, Changed: changed}, nil
}

func (p *Pack) uncordonNode(ctx context.Context, req NodeCordonRequest) (any, error) {
	p.logger.Info("uncordoning node", "node", req.NodeName)

	changed, err := p.setUnschedulable(ctx, req.NodeName, false)
	if err != nil {
		return nil, fmt.Errorf("failed to uncordon node: %w", err)
	}
	return cordonSummary{NodeName: req.NodeName, Unschedulable: false, Changed: changed}, nil
}

// setUnschedulable toggles the scheduling flag and reports whether the node
// actually changed. Cordoning an already cordoned node is a no-op.
func (p *Pack) setUnschedulable(ctx context.Context, nodeName string, unschedulable bool) (bool, error) {
	node, err := p.client.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err != nil {
		return false, err
	}

	if node.Spec.Unschedulable == unschedulable {
		return false, nil
	}

	node.Spec.Unschedulable = unschedulable
	if _, err := p.client.CoreV1().Nodes().Update(ctx, node, metav1.UpdateOptions{}); err != nil {
		return false, err
	}
	return true, nil
}
