package deployment

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// K8sClusterInfo is the public, non-sensitive view of a registered
// cluster: the raw kubeconfig is kept in memory only, never echoed
// back through the API.
type K8sClusterInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// K8sClusterRegistry holds one clientset per externally-registered
// Kubernetes cluster, keyed by cluster_id, so a single control plane
// can target more than one cluster the way a Target's
// k8s-cluster+namespace discriminant implies. Registration is in-
// memory only: a restarted process requires clusters to be
// re-registered, matching the Configuration Store's own
// process-lifetime cache for anything not written to the secrets/
// overrides layers.
type K8sClusterRegistry struct {
	mu       sync.RWMutex
	clusters map[string]*kubernetes.Clientset
	names    map[string]string
}

// NewK8sClusterRegistry builds an empty registry.
func NewK8sClusterRegistry() *K8sClusterRegistry {
	return &K8sClusterRegistry{
		clusters: map[string]*kubernetes.Clientset{},
		names:    map[string]string{},
	}
}

// Register parses kubeconfig bytes (as pasted by an operator into the
// dashboard), builds a clientset from it, assigns it a cluster_id, and
// stores it. name is an optional operator-chosen label.
func (r *K8sClusterRegistry) Register(kubeconfig []byte, name string) (K8sClusterInfo, error) {
	restCfg, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return K8sClusterInfo{}, fmt.Errorf("parsing kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return K8sClusterInfo{}, fmt.Errorf("building clientset: %w", err)
	}

	id, err := newClusterID()
	if err != nil {
		return K8sClusterInfo{}, fmt.Errorf("generating cluster id: %w", err)
	}

	r.mu.Lock()
	r.clusters[id] = clientset
	r.names[id] = name
	r.mu.Unlock()

	return K8sClusterInfo{ID: id, Name: name}, nil
}

// Get returns the clientset registered under clusterID.
func (r *K8sClusterRegistry) Get(clusterID string) (*kubernetes.Clientset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.clusters[clusterID]
	return cs, ok
}

// List returns every registered cluster's public info.
func (r *K8sClusterRegistry) List() []K8sClusterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]K8sClusterInfo, 0, len(r.clusters))
	for id, name := range r.names {
		out = append(out, K8sClusterInfo{ID: id, Name: name})
	}
	return out
}

func newClusterID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "c-" + hex.EncodeToString(buf), nil
}
