package probe

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// DefaultKubeconfigPath is where a stock k3s guest writes its kubeconfig,
// and the default used when a probe's spec omits an explicit override.
const DefaultKubeconfigPath = "/etc/rancher/k3s/k3s.yaml"

// k8sClient builds a clientset from the probe's kubeconfig/context override,
// defaulting to DefaultKubeconfigPath.
func k8sClient(kubeconfig, kctx *string) (*kubernetes.Clientset, error) {
	path := DefaultKubeconfigPath
	if kubeconfig != nil && *kubeconfig != "" {
		path = *kubeconfig
	}

	overrides := &clientcmd.ConfigOverrides{}
	if kctx != nil && *kctx != "" {
		overrides.CurrentContext = *kctx
	}

	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: path},
		overrides,
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig '%s': %w", path, err)
	}

	return kubernetes.NewForConfig(cfg)
}

func evalK8sNodesReadyMsg(ctx context.Context, spec Spec) string {
	client, err := k8sClient(spec.Kubeconfig, spec.Context)
	if err != nil {
		return err.Error()
	}

	nodes, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Sprintf("list nodes: %s", err)
	}

	ready := 0
	for _, n := range nodes.Items {
		if nodeReady(n) {
			ready++
		}
	}

	if ready < spec.ExpectedReady {
		return fmt.Sprintf("%d of %d expected nodes are ready", ready, spec.ExpectedReady)
	}
	return ""
}

func nodeReady(n corev1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func evalK8sEndpointsNonEmptyMsg(ctx context.Context, spec Spec) string {
	client, err := k8sClient(spec.Kubeconfig, spec.Context)
	if err != nil {
		return err.Error()
	}

	eps, err := client.CoreV1().Endpoints(spec.Namespace).Get(ctx, spec.Name, metav1.GetOptions{})
	if err != nil {
		return fmt.Sprintf("get endpoints '%s/%s': %s", spec.Namespace, spec.Name, err)
	}

	for _, subset := range eps.Subsets {
		if len(subset.Addresses) > 0 {
			return ""
		}
	}

	return fmt.Sprintf("endpoints '%s/%s' has no ready addresses", spec.Namespace, spec.Name)
}
