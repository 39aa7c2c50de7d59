package graph

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

const metricsNamespace = "graphrepo"

// Metrics holds the Prometheus collectors for store operations. Each instance
// owns its registry so tests and multiple stores never collide.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	records    *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "store_operations_total",
				Help:      "Total number of plans executed against the graph store",
			},
			[]string{"action", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Graph store plan duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "store_records_total",
				Help:      "Total number of records returned by the graph store",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		m.operations,
		m.duration,
		m.records,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Metered records count, latency and returned records of every plan.
func (m *Metrics) Metered(next Executor) Executor {
	return &meteredExecutor{next: next, metrics: m}
}

type meteredExecutor struct {
	next    Executor
	metrics *Metrics
}

func (e *meteredExecutor) Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	action := plan.Action.String()
	start := time.Now()

	res, err := e.next.Execute(ctx, plan)

	e.metrics.duration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.operations.WithLabelValues(action, status).Inc()
	if res != nil {
		e.metrics.records.WithLabelValues(action).Add(float64(len(res.Records)))
	}
	return res, err
}

func (e *meteredExecutor) SupportsNative(x *predicate.Expr) bool {
	return supportsNative(e.next, x)
}
