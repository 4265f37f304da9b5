package deployment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ushadow-io/ushadow/internal/registry"
)

// KubernetesBackend translates a resolved definition into a
// Deployment + Service (+ optional Ingress + ConfigMap) in the
// target's namespace. It reuses the same in-cluster/kubeconfig client
// bootstrap the teacher's core/discovery package uses for its
// Endpoints informer.
//
// A single KubernetesBackend can address more than one cluster: when
// a Target names a ClusterID, the clientset is looked up in clusters
// (populated by a K8sClusterRegistry); otherwise the process-default
// clientset built at startup from KUBECONFIG/in-cluster config is
// used, preserving single-cluster installs that never call
// POST /api/kubernetes/clusters at all.
type KubernetesBackend struct {
	clientset *kubernetes.Clientset
	clusters  *K8sClusterRegistry
}

// NewKubernetesBackend builds a client from kubeconfigPath, or the
// in-cluster config when kubeconfigPath is empty, and wires clusters
// for Targets that name an explicit ClusterID. clusters may be nil
// when multi-cluster registration is not needed.
func NewKubernetesBackend(kubeconfigPath string, clusters *K8sClusterRegistry) (*KubernetesBackend, error) {
	var cfg *rest.Config
	var err error
	if kubeconfigPath != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("loading kubernetes config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}
	return &KubernetesBackend{clientset: clientset, clusters: clusters}, nil
}

// NewMultiClusterKubernetesBackend builds a KubernetesBackend with no
// process-default clientset: every Deploy/Status/Stop/Remove/Logs call
// must name a Target.ClusterID resolvable through clusters. Used when
// an installation manages only externally-registered clusters and
// never runs KUBECONFIG/in-cluster against its own control plane.
func NewMultiClusterKubernetesBackend(clusters *K8sClusterRegistry) *KubernetesBackend {
	return &KubernetesBackend{clusters: clusters}
}

// clientFor resolves the clientset a Target addresses: the registered
// cluster named by target.ClusterID, or the process-default clientset
// when ClusterID is empty.
func (b *KubernetesBackend) clientFor(target Target) (*kubernetes.Clientset, error) {
	if target.ClusterID == "" {
		if b.clientset == nil {
			return nil, fmt.Errorf("no default kubernetes cluster configured; specify cluster_id")
		}
		return b.clientset, nil
	}
	if b.clusters == nil {
		return nil, fmt.Errorf("no kubernetes cluster registry configured")
	}
	cs, ok := b.clusters.Get(target.ClusterID)
	if !ok {
		return nil, fmt.Errorf("unknown kubernetes cluster_id %q", target.ClusterID)
	}
	return cs, nil
}

func (b *KubernetesBackend) Deploy(ctx context.Context, containerName string, def ResolvedServiceDefinition, target Target) (BackendStatus, error) {
	client, err := b.clientFor(target)
	if err != nil {
		return BackendStatus{}, err
	}

	ns := defaultNamespace(target)

	if len(def.ResolvedEnv) > 0 {
		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: containerName + "-env", Namespace: ns},
			Data:       def.ResolvedEnv,
		}
		if _, err := client.CoreV1().ConfigMaps(ns).Create(ctx, cm, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
			return BackendStatus{}, fmt.Errorf("creating configmap for %s: %w", containerName, err)
		}
	}

	replicas := target.Replicas
	if replicas == 0 {
		replicas = 1
	}
	labels := map[string]string{"app": containerName}

	containerPort, _ := primaryContainerPort(def.Ports)

	deploy := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: containerName, Namespace: ns, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels, Annotations: target.Annotations},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{b.containerSpec(containerName, def, containerPort, target)},
				},
			},
		},
	}

	existing, err := client.AppsV1().Deployments(ns).Get(ctx, containerName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := client.AppsV1().Deployments(ns).Create(ctx, deploy, metav1.CreateOptions{}); err != nil {
			return BackendStatus{}, fmt.Errorf("creating deployment %s: %w", containerName, err)
		}
	} else if err != nil {
		return BackendStatus{}, fmt.Errorf("getting deployment %s: %w", containerName, err)
	} else {
		existing.Spec = deploy.Spec
		if _, err := client.AppsV1().Deployments(ns).Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return BackendStatus{}, fmt.Errorf("updating deployment %s: %w", containerName, err)
		}
	}

	if containerPort > 0 {
		if err := b.ensureService(ctx, client, ns, containerName, labels, containerPort, target.ServiceType); err != nil {
			return BackendStatus{}, err
		}
		if target.IngressHost != "" {
			if err := b.ensureIngress(ctx, client, ns, containerName, target.IngressHost, containerPort); err != nil {
				return BackendStatus{}, err
			}
		}
	}

	return b.status(ctx, client, containerName, target)
}

func (b *KubernetesBackend) containerSpec(name string, def ResolvedServiceDefinition, containerPort int32, target Target) corev1.Container {
	c := corev1.Container{
		Name:    name,
		Image:   def.Image,
		Command: def.Command,
	}
	if len(def.ResolvedEnv) > 0 {
		c.EnvFrom = []corev1.EnvFromSource{{
			ConfigMapRef: &corev1.ConfigMapEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: name + "-env"},
			},
		}}
	}
	if containerPort > 0 {
		c.Ports = []corev1.ContainerPort{{ContainerPort: containerPort}}
	}
	if probe := healthProbe(def.HealthCheck, containerPort); probe != nil {
		c.ReadinessProbe = probe
		c.LivenessProbe = probe
	}
	if reqs := resourceRequirements(target); reqs != nil {
		c.Resources = *reqs
	}
	return c
}

// healthProbe builds an HTTPGet readiness/liveness probe from a
// ServiceDefinition's health check path, when one could be extracted
// from the Compose healthcheck's test command and there is a
// container port to target it at.
func healthProbe(hc *registry.HealthCheck, containerPort int32) *corev1.Probe {
	if hc == nil || hc.Path == "" || containerPort == 0 {
		return nil
	}
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{
				Path: hc.Path,
				Port: intstr.FromInt32(containerPort),
			},
		},
	}
}

// resourceRequirements builds a pod's resource requests/limits from
// optional Target metadata; returns nil when neither is set, leaving
// Kubernetes defaults in place.
func resourceRequirements(target Target) *corev1.ResourceRequirements {
	if target.ResourceRequests == nil && target.ResourceLimits == nil {
		return nil
	}
	out := &corev1.ResourceRequirements{}
	if list := resourceList(target.ResourceRequests); list != nil {
		out.Requests = list
	}
	if list := resourceList(target.ResourceLimits); list != nil {
		out.Limits = list
	}
	return out
}

func resourceList(spec *ResourceSpec) corev1.ResourceList {
	if spec == nil {
		return nil
	}
	list := corev1.ResourceList{}
	if spec.CPU != "" {
		if q, err := resource.ParseQuantity(spec.CPU); err == nil {
			list[corev1.ResourceCPU] = q
		}
	}
	if spec.Memory != "" {
		if q, err := resource.ParseQuantity(spec.Memory); err == nil {
			list[corev1.ResourceMemory] = q
		}
	}
	if len(list) == 0 {
		return nil
	}
	return list
}

func (b *KubernetesBackend) ensureService(ctx context.Context, client *kubernetes.Clientset, ns, name string, labels map[string]string, port int32, serviceType string) error {
	svcType := corev1.ServiceTypeClusterIP
	if serviceType != "" {
		svcType = corev1.ServiceType(serviceType)
	}
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: labels},
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Type:     svcType,
			Ports: []corev1.ServicePort{{
				Port:       port,
				TargetPort: intstr.FromInt32(port),
			}},
		},
	}
	existing, err := client.CoreV1().Services(ns).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := client.CoreV1().Services(ns).Create(ctx, svc, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	svc.ResourceVersion = existing.ResourceVersion
	svc.Spec.ClusterIP = existing.Spec.ClusterIP
	_, err = client.CoreV1().Services(ns).Update(ctx, svc, metav1.UpdateOptions{})
	return err
}

// ensureIngress creates or updates a single-host, single-path Ingress
// routing host/ -> the Service's port, when a Target names an
// ingress_host.
func (b *KubernetesBackend) ensureIngress(ctx context.Context, client *kubernetes.Clientset, ns, name, host string, port int32) error {
	pathType := networkingv1.PathTypePrefix
	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				Host: host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: name,
									Port: networkingv1.ServiceBackendPort{Number: port},
								},
							},
						}},
					},
				},
			}},
		},
	}
	existing, err := client.NetworkingV1().Ingresses(ns).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := client.NetworkingV1().Ingresses(ns).Create(ctx, ing, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	ing.ResourceVersion = existing.ResourceVersion
	_, err = client.NetworkingV1().Ingresses(ns).Update(ctx, ing, metav1.UpdateOptions{})
	return err
}

func (b *KubernetesBackend) Status(ctx context.Context, containerName string, target Target) (BackendStatus, error) {
	client, err := b.clientFor(target)
	if err != nil {
		return BackendStatus{}, err
	}
	return b.status(ctx, client, containerName, target)
}

func (b *KubernetesBackend) status(ctx context.Context, client *kubernetes.Clientset, containerName string, target Target) (BackendStatus, error) {
	ns := defaultNamespace(target)
	deploy, err := client.AppsV1().Deployments(ns).Get(ctx, containerName, metav1.GetOptions{})
	if err != nil {
		return BackendStatus{}, fmt.Errorf("getting deployment %s: %w", containerName, err)
	}

	state := StateDeploying
	if deploy.Status.ReadyReplicas > 0 {
		state = StateRunning
	} else if deploy.Status.Replicas == 0 {
		state = StateStopped
	}

	status := BackendStatus{State: state, ContainerID: string(deploy.UID)}
	if svc, err := client.CoreV1().Services(ns).Get(ctx, containerName, metav1.GetOptions{}); err == nil && len(svc.Spec.Ports) > 0 {
		status.PrimaryHost = fmt.Sprintf("%s.%s.svc.cluster.local", containerName, ns)
		status.PrimaryPort = int(svc.Spec.Ports[0].Port)
	}
	if target.IngressHost != "" {
		status.Message = "ingress host " + target.IngressHost
	}
	return status, nil
}

func (b *KubernetesBackend) Stop(ctx context.Context, containerName string, target Target) error {
	client, err := b.clientFor(target)
	if err != nil {
		return err
	}
	ns := defaultNamespace(target)
	var zero int32
	deploy, err := client.AppsV1().Deployments(ns).Get(ctx, containerName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("getting deployment %s: %w", containerName, err)
	}
	deploy.Spec.Replicas = &zero
	_, err = client.AppsV1().Deployments(ns).Update(ctx, deploy, metav1.UpdateOptions{})
	return err
}

func (b *KubernetesBackend) Remove(ctx context.Context, containerName string, target Target) error {
	client, err := b.clientFor(target)
	if err != nil {
		return err
	}
	ns := defaultNamespace(target)
	policy := metav1.DeletePropagationForeground
	if err := client.AppsV1().Deployments(ns).Delete(ctx, containerName, metav1.DeleteOptions{PropagationPolicy: &policy}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting deployment %s: %w", containerName, err)
	}
	if err := client.CoreV1().Services(ns).Delete(ctx, containerName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting service %s: %w", containerName, err)
	}
	if err := client.NetworkingV1().Ingresses(ns).Delete(ctx, containerName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting ingress for %s: %w", containerName, err)
	}
	if err := client.CoreV1().ConfigMaps(ns).Delete(ctx, containerName+"-env", metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting configmap for %s: %w", containerName, err)
	}
	return nil
}

func (b *KubernetesBackend) Logs(ctx context.Context, containerName string, target Target, tail int) (string, error) {
	client, err := b.clientFor(target)
	if err != nil {
		return "", err
	}
	ns := defaultNamespace(target)
	pods, err := client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{LabelSelector: "app=" + containerName})
	if err != nil {
		return "", fmt.Errorf("listing pods for %s: %w", containerName, err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods found for %s", containerName)
	}
	tailLines := int64(tail)
	req := client.CoreV1().Pods(ns).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{TailLines: &tailLines})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("streaming logs for %s: %w", containerName, err)
	}
	defer stream.Close()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return sb.String(), nil
}

func defaultNamespace(target Target) string {
	if target.Namespace == "" {
		return "default"
	}
	return target.Namespace
}

// primaryContainerPort returns the first declared port's
// container-side port number: the rule that the first declared port
// becomes the Service's port.
func primaryContainerPort(ports []string) (int32, bool) {
	if len(ports) == 0 {
		return 0, false
	}
	spec := ports[0]
	if idx := strings.LastIndex(spec, "/"); idx >= 0 {
		spec = spec[:idx]
	}
	containerPort := spec
	if idx := strings.LastIndex(spec, ":"); idx >= 0 {
		containerPort = spec[idx+1:]
	}
	n, err := strconv.Atoi(containerPort)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}
