package roaming

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	enqueuedTotal  *prometheus.CounterVec
	filteredTotal  *prometheus.CounterVec
	flushTotal     *prometheus.CounterVec
	pushTotal      *prometheus.CounterVec
	pushLatency    *prometheus.HistogramVec
	requeuedTotal  *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	lockContention *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
)

type collectors struct {
	enqueued, filtered, flush, push, requeued, dropped, contention *prometheus.CounterVec
	latency                                                        *prometheus.HistogramVec
	depth                                                          *prometheus.GaugeVec
}

// newCollectors creates new metric collectors.
func newCollectors() collectors {
	return collectors{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roaming_enqueued_total",
			Help: "Mutations accepted into a provider queue",
		}, []string{"provider", "kind"}),
		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roaming_filtered_total",
			Help: "EVSE mutations ignored by the inclusion filter",
		}, []string{"provider"}),
		flush: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roaming_flush_total",
			Help: "Flush invocations by kind and result",
		}, []string{"provider", "kind", "result"}),
		push: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roaming_push_total",
			Help: "Pushes to the partner by operation, mode and outcome",
		}, []string{"provider", "operation", "mode", "outcome"}),
		requeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roaming_requeued_total",
			Help: "Entries returned to a container after a failed push",
		}, []string{"provider", "container"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roaming_dropped_total",
			Help: "Entries dropped after exceeding the push attempt limit",
		}, []string{"provider", "container"}),
		contention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roaming_lock_contention_total",
			Help: "Flushes skipped because the provider lock was busy",
		}, []string{"provider", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roaming_push_latency_seconds",
			Help:    "Latency of pushes to the partner",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roaming_queue_depth",
			Help: "Pending entries per container",
		}, []string{"provider", "container"}),
	}
}

func (c collectors) install() {
	enqueuedTotal = c.enqueued
	filteredTotal = c.filtered
	flushTotal = c.flush
	pushTotal = c.push
	requeuedTotal = c.requeued
	droppedTotal = c.dropped
	lockContention = c.contention
	pushLatency = c.latency
	queueDepth = c.depth
}

func init() {
	newCollectors().install()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the engine metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(enqueuedTotal, filteredTotal, flushTotal, pushTotal, requeuedTotal,
		droppedTotal, lockContention, pushLatency, queueDepth)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	newCollectors().install()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func observeDepth(provider string, s QueueStats) {
	queueDepth.WithLabelValues(provider, ContainerAdd).Set(float64(s.Adds))
	queueDepth.WithLabelValues(provider, ContainerUpdate).Set(float64(s.Updates))
	queueDepth.WithLabelValues(provider, ContainerRemove).Set(float64(s.Removes))
	queueDepth.WithLabelValues(provider, ContainerFastStatus).Set(float64(s.FastStatus))
	queueDepth.WithLabelValues(provider, ContainerDelayedStatus).Set(float64(s.DelayedStatus))
	queueDepth.WithLabelValues(provider, ContainerCDR).Set(float64(s.CDRs))
}
