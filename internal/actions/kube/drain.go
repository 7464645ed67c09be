package kube

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NodeDrainRequest configures a drain.
type NodeDrainRequest struct {
	// NodeName is the node to drain. Required.
	NodeName string `json:"node_name"`

	// GracePeriodSeconds overrides the pod termination grace period.
	// Defaults to 30.
	GracePeriodSeconds *int64 `json:"grace_period_seconds"`

	// IgnoreDaemonSets skips DaemonSet-managed pods. Defaults to true.
	IgnoreDaemonSets *bool `json:"ignore_daemon_sets"`

	// DeleteEmptyDirData evicts pods with emptyDir volumes as well.
	DeleteEmptyDirData bool `json:"delete_emptydir_data"`

	// Force keeps evicting after individual failures instead of aborting.
	Force bool `json:"force"`
}

func (r *NodeDrainRequest) Validate() error {
	if r.NodeName == "" {
		return errors.New("node_name is required")
	}
	if r.GracePeriodSeconds == nil {
		grace := int64(30)
		r.GracePeriodSeconds = &grace
	} else if *r.GracePeriodSeconds < 0 {
		return errors.New("grace_period_seconds must not be negative")
	}
	if r.IgnoreDaemonSets == nil {
		ignore := true
		r.IgnoreDaemonSets = &ignore
	}
	return nil
}

type drainSummary struct {
	NodeName    string   `json:"node_name"`
	PodsEvicted int      `json:"pods_evicted"`
	PodsSkipped int      `json:"pods_skipped"`
	PodsFailed  int      `json:"pods_failed"`
	FailedPods  []string `json:"failed_pods,omitempty"`
	Duration    string   `json:"duration"`
}

func (p *Pack) drainNode(ctx context.Context, req NodeDrainRequest) (any, error) {
	start := time.Now()

	p.logger.Info("draining node",
		"node", req.NodeName,
		"grace_period_seconds", *req.GracePeriodSeconds,
		"ignore_daemon_sets", *req.IgnoreDaemonSets,
		"force", req.Force,
	)

	if _, err := p.setUnschedulable(ctx, req.NodeName, true); err != nil {
		return nil, fmt.Errorf("failed to cordon node: %w", err)
	}

	podList, err := p.client.CoreV1().Pods("").List(ctx, metav1.ListOptions{
		FieldSelector: "spec.nodeName=" + req.NodeName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods on node: %w", err)
	}

	summary := drainSummary{NodeName: req.NodeName}
	for i := range podList.Items {
		pod := &podList.Items[i]

		if *req.IgnoreDaemonSets && isDaemonSetPod(pod) {
			summary.PodsSkipped++
			continue
		}
		if isMirrorPod(pod) {
			summary.PodsSkipped++
			continue
		}
		if hasEmptyDirVolume(pod) && !req.DeleteEmptyDirData {
			summary.PodsFailed++
			summary.FailedPods = append(summary.FailedPods, pod.Namespace+"/"+pod.Name)
			if !req.Force {
				return nil, fmt.Errorf("pod %s/%s has emptyDir volumes, set delete_emptydir_data to evict it", pod.Namespace, pod.Name)
			}
			continue
		}

		if err := p.evictPod(ctx, pod, req.GracePeriodSeconds); err != nil {
			p.logger.Warn("failed to evict pod",
				"pod", pod.Name,
				"namespace", pod.Namespace,
				"error", err,
			)
			summary.PodsFailed++
			summary.FailedPods = append(summary.FailedPods, pod.Namespace+"/"+pod.Name)
			if !req.Force {
				return nil, fmt.Errorf("failed to evict pod %s/%s: %w", pod.Namespace, pod.Name, err)
			}
			continue
		}
		summary.PodsEvicted++
	}

	summary.Duration = time.Since(start).Round(time.Millisecond).String()

	p.logger.Info("drain complete",
		"node", req.NodeName,
		"pods_evicted", summary.PodsEvicted,
		"pods_skipped", summary.PodsSkipped,
		"pods_failed", summary.PodsFailed,
	)

	return summary, nil
}

// evictPod goes through the Eviction API so disruption budgets apply. An
// already deleted pod counts as evicted.
func (p *Pack) evictPod(ctx context.Context, pod *corev1.Pod, gracePeriod *int64) error {
	eviction := &policyv1.Eviction{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pod.Name,
			Namespace: pod.Namespace,
		},
		DeleteOptions: &metav1.DeleteOptions{
			GracePeriodSeconds: gracePeriod,
		},
	}

	err := p.client.CoreV1().Pods(pod.Namespace).EvictV1(ctx, eviction)
	switch {
	case err == nil:
		return nil
	case apierrors.IsNotFound(err):
		return nil
	case apierrors.IsTooManyRequests(err):
		return fmt.Errorf("disruption budget prevents eviction: %w", err)
	default:
		return err
	}
}

func isDaemonSetPod(pod *corev1.Pod) bool {
	for _, owner := range pod.OwnerReferences {
		if owner.Kind == "DaemonSet" {
			return true
		}
	}
	return false
}

func isMirrorPod(pod *corev1.Pod) bool {
	_, exists := pod.Annotations[corev1.MirrorPodAnnotationKey]
	return exists
}

func hasEmptyDirVolume(pod *corev1.Pod) bool {
	for _, volume := range pod.Spec.Volumes {
		if volume.EmptyDir != nil {
			return true
		}
	}
	return false
}
