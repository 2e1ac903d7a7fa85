package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/roamsync/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records flush summaries in Prometheus metrics. The per-provider
// counters of the engine itself live in core/roaming; this sink adds the
// distributions derived from flush reports.
type PromSink struct {
	flushDuration *prometheus.HistogramVec
	batchSize     *prometheus.HistogramVec
	cdrOutcomes   *prometheus.CounterVec
	exceptions    *prometheus.CounterVec
	unpushed      *prometheus.GaugeVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately, see StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	s := &PromSink{}
	if s.flushDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roaming_flush_duration_seconds",
		Help:    "Duration of provider flushes",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "kind", "result"})); err != nil {
		return nil, err
	}
	if s.batchSize, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roaming_push_batch_size",
		Help:    "Number of entries per pushed batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"provider", "operation"})); err != nil {
		return nil, err
	}
	if s.cdrOutcomes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaming_cdr_outcomes_total",
		Help: "Charge detail record pushes by status",
	}, []string{"provider", "status"})); err != nil {
		return nil, err
	}
	if s.exceptions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roaming_flush_exceptions_total",
		Help: "Flushes aborted by a bookkeeping failure",
	}, []string{"provider", "kind"})); err != nil {
		return nil, err
	}
	if s.unpushed, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roaming_unpushed_removals",
		Help: "Removals collected by the last service flush but not sent",
	}, []string{"provider"})); err != nil {
		return nil, err
	}
	return s, nil
}

// register registers c or returns the collector already registered under the
// same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordFlush observes the flush duration.
func (s *PromSink) RecordFlush(rec coremetrics.FlushRecord) error {
	s.flushDuration.WithLabelValues(rec.Provider, rec.Kind, rec.Result).Observe(rec.Duration.Seconds())
	if rec.Kind == "service" && rec.Result != "skipped" && rec.Result != "error" {
		s.unpushed.WithLabelValues(rec.Provider).Set(float64(rec.Unpushed))
	}
	return nil
}

// RecordPushes observes batch sizes.
func (s *PromSink) RecordPushes(recs []coremetrics.PushRecord) error {
	for _, r := range recs {
		s.batchSize.WithLabelValues(r.Provider, r.Operation).Observe(float64(r.Count))
	}
	return nil
}

// RecordCDRs counts record outcomes.
func (s *PromSink) RecordCDRs(recs []coremetrics.CDRRecord) error {
	for _, r := range recs {
		s.cdrOutcomes.WithLabelValues(r.Provider, r.Status).Inc()
	}
	return nil
}

// RecordException counts aborted flushes.
func (s *PromSink) RecordException(rec coremetrics.ExceptionRecord) error {
	s.exceptions.WithLabelValues(rec.Provider, rec.Kind).Inc()
	return nil
}
