package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusFactory implements MetricFactory on a Prometheus registerer.
type PrometheusFactory struct {
	registerer prometheus.Registerer
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory creates a factory registering on the given registerer.
// Pass prometheus.DefaultRegisterer for the process-global registry.
func NewPrometheusFactory(registerer prometheus.Registerer) *PrometheusFactory {
	return &PrometheusFactory{registerer: registerer}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	return promauto.With(f.registerer).NewCounter(prometheus.CounterOpts{
		Name: promName(name),
	})
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	return promauto.With(f.registerer).NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Buckets: prometheus.DefBuckets,
	})
}

// promName converts dotted metric names to the Prometheus convention.
func promName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
