// Package metrics instruments a playground session with prometheus
// collectors. Each Metrics value owns its registry, so several sessions
// (and tests) never collide on registration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/reconcile"
)

const namespace = "kube_playground"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	reconciliations   *prometheus.CounterVec
	podsCreated       prometheus.Counter
	podsRemoved       prometheus.Counter
	droppedDocuments  prometheus.Counter
	nodes             *prometheus.GaugeVec
	edges             prometheus.Gauge
}

// New registers the session collectors plus the Go runtime collectors on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Canvas operations by name and result.",
		}, []string{"operation", "result"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent applying canvas operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliation passes by result (changed, noop, skipped, failed).",
		}, []string{"result"}),
		podsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pods_created_total",
			Help:      "Pods synthesized by reconciliation.",
		}),
		podsRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pods_removed_total",
			Help:      "Pods removed by reconciliation.",
		}),
		droppedDocuments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_documents_total",
			Help:      "Manifest documents skipped because they failed to parse.",
		}),
		nodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Nodes on the canvas by component type.",
		}, []string{"type"}),
		edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges",
			Help:      "Edges on the canvas.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation records one canvas operation.
func (m *Metrics) ObserveOperation(operation string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveReconcile records the outcome of one reconciliation pass.
func (m *Metrics) ObserveReconcile(report *reconcile.Report, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.reconciliations.WithLabelValues("failed").Inc()
	case report == nil || report.Skipped:
		m.reconciliations.WithLabelValues("skipped").Inc()
	case report.Changed():
		m.reconciliations.WithLabelValues("changed").Inc()
		m.podsCreated.Add(float64(len(report.Added)))
		m.podsRemoved.Add(float64(len(report.Removed)))
	default:
		m.reconciliations.WithLabelValues("noop").Inc()
	}
}

// ObserveDroppedDocuments counts documents a parse skipped.
func (m *Metrics) ObserveDroppedDocuments(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedDocuments.Add(float64(n))
}

// SetGraph refreshes the canvas size gauges. Types absent from g are
// reported as zero.
func (m *Metrics) SetGraph(g *model.Graph) {
	if m == nil {
		return
	}
	counts := make(map[kinds.ComponentType]int)
	for _, n := range g.Nodes() {
		counts[n.Type]++
	}
	m.nodes.Reset()
	for _, t := range kinds.All() {
		m.nodes.WithLabelValues(string(t)).Set(float64(counts[t]))
		delete(counts, t)
	}
	for t, c := range counts {
		m.nodes.WithLabelValues(string(t)).Set(float64(c))
	}
	m.edges.Set(float64(len(g.Edges())))
}
