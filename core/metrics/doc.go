package metrics

// Package metrics defines interfaces for recording synchronization metrics.
// Sinks like PromSink and InfluxSink record flush summaries, push outcomes and
// charge detail record results and can be combined with NewMultiSink. The
// factory helpers return a MultiSink automatically when multiple sinks are
// configured. The event collector in infra/metrics feeds sinks from the
// provider event bus.
