// Package metrics exposes orchestration-core counters to Prometheus.
//
// The counter set is the teacher's atomic-counters shape generalized
// from cache hit/miss bookkeeping to deployment and node lifecycle
// events, and wired to a real exporter instead of being read back only
// in-process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Collector holds every Prometheus metric the orchestration core emits.
type Collector struct {
	registry *prometheus.Registry

	DeploymentsStarted  prometheus.Counter
	DeploymentsFailed   prometheus.Counter
	DeploymentsRemoved  prometheus.Counter
	HeartbeatsReceived  prometheus.Counter
	NodesStale          prometheus.Gauge
	NodesOnline         prometheus.Gauge
	ProxyRoutesActive   prometheus.Gauge
	BackendCallDuration *prometheus.HistogramVec
}

// NewCollector builds and registers the full metric set under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		DeploymentsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deployments_started_total",
			Help: "Deployments that entered the deploying state.",
		}),
		DeploymentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deployments_failed_total",
			Help: "Deployments that transitioned to failed.",
		}),
		DeploymentsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deployments_removed_total",
			Help: "Deployments that reached the removed state.",
		}),
		HeartbeatsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "node_heartbeats_total",
			Help: "Heartbeats accepted from u-nodes.",
		}),
		NodesStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "nodes_stale",
			Help: "u-nodes currently in the stale or lost state.",
		}),
		NodesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "nodes_online",
			Help: "u-nodes currently online.",
		}),
		ProxyRoutesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "proxy_routes_active",
			Help: "ProxyRoutes currently owned by the overlay proxy controller.",
		}),
		BackendCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "backend_call_duration_seconds",
			Help:    "Latency of deployment-backend RPCs by backend kind and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
	}
	reg.MustRegister(
		c.DeploymentsStarted, c.DeploymentsFailed, c.DeploymentsRemoved,
		c.HeartbeatsReceived, c.NodesStale, c.NodesOnline, c.ProxyRoutesActive,
		c.BackendCallDuration,
	)
	return c
}

// Handler returns the HTTP handler to mount at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
