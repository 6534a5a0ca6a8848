// Package metrics provides Prometheus metrics for document store operations.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

// Registry manages Prometheus metrics registration and exposition.
// It includes the document operation metrics and Go runtime metrics by default.
type Registry struct {
	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with default collectors:
// - document operation metrics (duration, counter, affected documents)
// - walkthrough step outcomes
// - Go runtime metrics (goroutines, memory, GC)
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(documentOperationDuration)
	reg.MustRegister(documentOperationsTotal)
	reg.MustRegister(documentsAffectedTotal)
	reg.MustRegister(walkthroughStepsTotal)

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Registry{
		registry: reg,
	}
}

// WriteText gathers every metric family whose name starts with one of the
// given prefixes (all families when none are given) and writes them in the
// Prometheus text exposition format.
func (r *Registry) WriteText(w io.Writer, prefixes ...string) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if !hasAnyPrefix(mf.GetName(), prefixes) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}
