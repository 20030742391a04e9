package intar

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"

	"intar.dev/intar/probe"
)

const defaultKubeconfigPath = probe.DefaultKubeconfigPath

// RunStep executes step's Actions sequentially against vmName over ch,
// appending a failure line or, on success, the sentinel line
// "step <vm>/<step> complete" to /var/log/intar/step-<vm>-<step>.log on the
// guest. The orchestrator takes step completion from RunStep's return
// value; nothing reads the sentinel back.
func RunStep(ctx context.Context, ch *SSHChannel, vmName string, step Step) error {
	logPath := fmt.Sprintf("/var/log/intar/step-%s-%s.log", vmName, step.Name)
	appendLog := func(line string) {
		quoted := fmt.Sprintf("sudo -n mkdir -p /var/log/intar && echo %q | sudo -n tee -a %s >/dev/null", line, logPath)
		ch.Exec(ctx, quoted)
	}

	for _, action := range step.Actions {
		if err := runAction(ctx, ch, action, appendLog); err != nil {
			appendLog(fmt.Sprintf("action %s failed: %s", action.Kind, err))
			return Wrap(StepFailure, fmt.Sprintf("step %s/%s: action %s", vmName, step.Name, action.Kind), err)
		}
	}

	appendLog(fmt.Sprintf("step %s/%s complete", vmName, step.Name))
	return nil
}

func runAction(ctx context.Context, ch *SSHChannel, action Action, log func(string)) error {
	switch action.Kind {
	case ActionFileWrite:
		return fileWrite(ctx, ch, action)
	case ActionFileDelete:
		res, err := ch.Exec(ctx, fmt.Sprintf("sudo rm -f %s", action.Path))
		return requireZero(res, err)
	case ActionCommand:
		res, err := ch.Exec(ctx, fmt.Sprintf("sudo -n sh -c %q", action.Cmd))
		return requireZero(res, err)
	case ActionSystemctl:
		res, err := ch.Exec(ctx, fmt.Sprintf("sudo -n systemctl %s %s", action.SystemctlVerb, action.Unit))
		return requireZero(res, err)
	case ActionK8sNamespace:
		return applyManifest(ctx, ch, namespaceManifest(action.Name))
	case ActionK8sDeployment:
		return applyManifest(ctx, ch, deploymentManifest(action))
	case ActionK8sService:
		return applyManifest(ctx, ch, serviceManifest(action))
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func fileWrite(ctx context.Context, ch *SSHChannel, action Action) error {
	tmp := fmt.Sprintf("/tmp/intar-write-%d", time.Now().UnixNano())
	if err := ch.WriteFile(ctx, tmp, []byte(action.Content)); err != nil {
		return err
	}
	perms := action.Permissions
	if perms == "" {
		perms = "0644"
	}
	cmd := fmt.Sprintf("sudo chmod %s %s && sudo mv %s %s", perms, tmp, tmp, action.Path)
	res, err := ch.Exec(ctx, cmd)
	return requireZero(res, err)
}

func requireZero(res CommandResult, err error) error {
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("exited %d: %s", res.ExitCode, string(res.Stderr))
	}
	return nil
}

func applyManifest(ctx context.Context, ch *SSHChannel, manifest []byte) error {
	cmd := fmt.Sprintf("sudo KUBECONFIG=%s kubectl apply -f -", defaultKubeconfigPath)
	tmp := fmt.Sprintf("/tmp/intar-manifest-%d.yaml", time.Now().UnixNano())
	if err := ch.WriteFile(ctx, tmp, manifest); err != nil {
		return err
	}
	res, err := ch.Exec(ctx, fmt.Sprintf("%s < %s", cmd, tmp))
	return requireZero(res, err)
}

func namespaceManifest(name string) []byte {
	ns := corev1.Namespace{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}
	bs, _ := yaml.Marshal(ns)
	return bs
}

func deploymentManifest(action Action) []byte {
	replicas := int32(action.Replicas)
	labels := map[string]string{"app": action.Name}

	dep := appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{Name: action.Name},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  action.Name,
						Image: action.Image,
						Ports: []corev1.ContainerPort{{ContainerPort: int32(action.Port)}},
					}},
				},
			},
		},
	}
	bs, _ := yaml.Marshal(dep)
	return bs
}

func serviceManifest(action Action) []byte {
	svc := corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{Name: action.Name},
		Spec: corev1.ServiceSpec{
			Selector: action.Selector,
			Ports: []corev1.ServicePort{{
				Port:       int32(action.ServicePort),
				TargetPort: intstr.FromInt(action.TargetPort),
			}},
		},
	}
	bs, _ := yaml.Marshal(svc)
	return bs
}
