package intar

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
)

// probeBlockToJSON decodes a ProbeBlock's remaining attributes according to
// its declared type, then re-marshals them into the flat tagged-union wire
// shape probe.Parse expects. HCL attribute names mirror the wire protocol's
// field names exactly, so each kind is a thin struct-decode-then-remarshal.
func probeBlockToJSON(pb ProbeBlock) (json.RawMessage, error) {
	var body map[string]any

	switch pb.Type {
	case "file_content":
		var attrs struct {
			Path     string  `hcl:"path,attr"`
			Contains *string `hcl:"contains,optional"`
			Regex    *string `hcl:"regex,optional"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"path": attrs.Path, "contains": attrs.Contains, "regex": attrs.Regex}

	case "file_exists":
		var attrs struct {
			Path   string `hcl:"path,attr"`
			Exists *bool  `hcl:"exists,optional"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"path": attrs.Path, "exists": attrs.Exists}

	case "service":
		var attrs struct {
			Service string `hcl:"service,attr"`
			State   string `hcl:"state,attr"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"service": attrs.Service, "state": attrs.State}

	case "port":
		var attrs struct {
			Port     int    `hcl:"port,attr"`
			State    string `hcl:"state,attr"`
			Protocol string `hcl:"protocol,optional"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"port": attrs.Port, "state": attrs.State, "protocol": attrs.Protocol}

	case "command":
		var attrs struct {
			Cmd            string  `hcl:"cmd,attr"`
			ExitCode       *int    `hcl:"exit_code,optional"`
			StdoutContains *string `hcl:"stdout_contains,optional"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"cmd": attrs.Cmd, "exit_code": attrs.ExitCode, "stdout_contains": attrs.StdoutContains}

	case "http":
		var attrs struct {
			URL          string  `hcl:"url,attr"`
			Status       int     `hcl:"status,attr"`
			BodyContains *string `hcl:"body_contains,optional"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"url": attrs.URL, "status": attrs.Status, "body_contains": attrs.BodyContains}

	case "k8s_nodes_ready":
		var attrs struct {
			ExpectedReady int     `hcl:"expected_ready,attr"`
			Kubeconfig    *string `hcl:"kubeconfig,optional"`
			Context       *string `hcl:"context,optional"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"expected_ready": attrs.ExpectedReady, "kubeconfig": attrs.Kubeconfig, "context": attrs.Context}

	case "k8s_endpoints_nonempty":
		var attrs struct {
			Namespace  string  `hcl:"namespace,attr"`
			Name       string  `hcl:"name,attr"`
			Kubeconfig *string `hcl:"kubeconfig,optional"`
			Context    *string `hcl:"context,optional"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"namespace": attrs.Namespace, "name": attrs.Name, "kubeconfig": attrs.Kubeconfig, "context": attrs.Context}

	case "tcp_ping":
		var attrs struct {
			Host      string `hcl:"host,attr"`
			Port      *int   `hcl:"port,optional"`
			TimeoutMS *int   `hcl:"timeout_ms,optional"`
			State     string `hcl:"state,optional"`
		}
		if diags := gohcl.DecodeBody(pb.Remain, nil, &attrs); diags.HasErrors() {
			return nil, diags
		}
		body = map[string]any{"host": attrs.Host, "port": attrs.Port, "timeout_ms": attrs.TimeoutMS, "state": attrs.State}

	default:
		return nil, fmt.Errorf("unknown probe type %q", pb.Type)
	}

	body["type"] = pb.Type
	return json.Marshal(body)
}

// actionBlockToAction decodes an ActionBlock's body according to its
// declared type into the corresponding Action variant.
func actionBlockToAction(ab ActionBlock) Action {
	switch ab.Type {
	case "file_write":
		var attrs struct {
			Path        string `hcl:"path,attr"`
			Content     string `hcl:"content,attr"`
			Permissions string `hcl:"permissions,optional"`
		}
		_ = gohcl.DecodeBody(ab.Body, nil, &attrs)
		perms := attrs.Permissions
		if perms == "" {
			perms = "0644"
		}
		return Action{Kind: ActionFileWrite, Path: attrs.Path, Content: attrs.Content, Permissions: perms}

	case "file_delete":
		var attrs struct {
			Path string `hcl:"path,attr"`
		}
		_ = gohcl.DecodeBody(ab.Body, nil, &attrs)
		return Action{Kind: ActionFileDelete, Path: attrs.Path}

	case "command":
		var attrs struct {
			Cmd string `hcl:"cmd,attr"`
		}
		_ = gohcl.DecodeBody(ab.Body, nil, &attrs)
		return Action{Kind: ActionCommand, Cmd: attrs.Cmd}

	case "systemctl":
		var attrs struct {
			Unit   string `hcl:"unit,attr"`
			Action string `hcl:"action,attr"`
		}
		_ = gohcl.DecodeBody(ab.Body, nil, &attrs)
		return Action{Kind: ActionSystemctl, Unit: attrs.Unit, SystemctlVerb: attrs.Action}

	case "k8s_namespace":
		var attrs struct {
			Name string `hcl:"name,attr"`
		}
		_ = gohcl.DecodeBody(ab.Body, nil, &attrs)
		return Action{Kind: ActionK8sNamespace, Name: attrs.Name}

	case "k8s_deployment":
		var attrs struct {
			Name     string `hcl:"name,attr"`
			Image    string `hcl:"image,attr"`
			Replicas int    `hcl:"replicas,optional"`
			Port     int    `hcl:"port,optional"`
		}
		_ = gohcl.DecodeBody(ab.Body, nil, &attrs)
		if attrs.Replicas == 0 {
			attrs.Replicas = 1
		}
		return Action{Kind: ActionK8sDeployment, Name: attrs.Name, Image: attrs.Image, Replicas: attrs.Replicas, Port: attrs.Port}

	case "k8s_service":
		var attrs struct {
			Name        string            `hcl:"name,attr"`
			Selector    map[string]string `hcl:"selector,attr"`
			ServicePort int               `hcl:"service_port,attr"`
			TargetPort  int               `hcl:"target_port,attr"`
		}
		_ = gohcl.DecodeBody(ab.Body, nil, &attrs)
		return Action{
			Kind: ActionK8sService, Name: attrs.Name, Selector: attrs.Selector,
			ServicePort: attrs.ServicePort, TargetPort: attrs.TargetPort,
		}

	default:
		return Action{Kind: ActionKind(ab.Type)}
	}
}
