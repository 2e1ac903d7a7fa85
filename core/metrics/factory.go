package metrics

import (
	"fmt"

	"github.com/kilianp07/roamsync/core/factory"
)

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink makes a sink type available to the metrics.sinks
// configuration. Backends register themselves from init.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// MetricsSinkTypes lists the registered sink types.
func MetricsSinkTypes() []string { return sinkRegistry.Names() }

// NewMetricsSink builds the sinks receiving flush, push and charge detail
// record outcomes. No configuration exports nothing; several sinks are fed
// through a MultiSink. Each type may appear once so that an outcome is not
// counted twice by the same backend.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	sinks := make([]MetricsSink, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for i, c := range cfgs {
		if seen[c.Type] {
			closeSinks(sinks)
			return nil, fmt.Errorf("sinks[%d]: duplicate sink type %q", i, c.Type)
		}
		seen[c.Type] = true
		s, err := sinkRegistry.Create(c)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}

func closeSinks(sinks []MetricsSink) {
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
