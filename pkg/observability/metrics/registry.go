package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Namespace prefixes every engine metric name.
const Namespace = "vbengine_"

// Registry exposes the engine metrics, and optionally the Go runtime and process metrics,
// through its own Prometheus registry.
type Registry struct {
	registry *prometheus.Registry
}

// RegistryOption customizes NewRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	runtime bool
}

// WithoutRuntimeCollectors leaves out the Go runtime and process collectors.
func WithoutRuntimeCollectors() RegistryOption {
	return func(o *registryOptions) { o.runtime = false }
}

// NewRegistry creates a registry holding the store, write plan and sequence metrics.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{runtime: true}
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(storeOperationDuration, storeOperationsTotal, writeOpsTotal, sequenceIssuedTotal)
	if o.runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Registry{registry: reg}
}

// Register adds an application collector next to the engine metrics.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.registry.MustRegister(collectors...)
}

// Unregister removes a collector. It reports whether the collector was registered.
func (r *Registry) Unregister(collector prometheus.Collector) bool {
	return r.registry.Unregister(collector)
}

// Handler serves the registry in the Prometheus exposition format.
//
//	http.Handle("/metrics", registry.Handler())
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer returns the underlying prometheus.Gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteText writes the metric families whose name starts with prefix in the Prometheus text
// format. An empty prefix writes every family.
func (r *Registry) WriteText(w io.Writer, prefix string) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), prefix) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
