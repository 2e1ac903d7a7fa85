package metrics

import "time"

// FlushRecord summarizes one flush of a roaming provider.
type FlushRecord struct {
	Provider string
	Kind     string
	Run      uint64
	Result   string
	Pushes   int
	Promoted int
	// Unpushed is the number of removals collected but not sent.
	Unpushed int
	Duration time.Duration
	Time     time.Time
}

// MetricsSink records flush summaries for observability purposes.
type MetricsSink interface {
	RecordFlush(rec FlushRecord) error
}

// PushRecord describes one batch sent to a partner.
type PushRecord struct {
	Provider  string
	Operation string
	Mode      string
	Count     int
	Accepted  bool
	Rejected  int
	Requeued  int
	Dropped   int
	Latency   time.Duration
	Time      time.Time
}

// PushRecorder records batch pushes.
type PushRecorder interface {
	RecordPushes(recs []PushRecord) error
}

// CDRRecord describes the outcome of one charge detail record push.
type CDRRecord struct {
	Provider  string
	SessionID string
	Status    string
	Requeued  bool
	Time      time.Time
}

// CDRRecorder records charge detail record outcomes.
type CDRRecorder interface {
	RecordCDRs(recs []CDRRecord) error
}

// DropRecord describes entries given up after repeated push failures.
type DropRecord struct {
	Provider  string
	Container string
	Count     int
	Time      time.Time
}

// DropRecorder records dropped entries.
type DropRecorder interface {
	RecordDrop(rec DropRecord) error
}

// ExceptionRecord marks a flush aborted by a bookkeeping failure.
type ExceptionRecord struct {
	Provider string
	Kind     string
	Error    string
	Time     time.Time
}

// ExceptionRecorder records bookkeeping failures.
type ExceptionRecorder interface {
	RecordException(rec ExceptionRecord) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordFlush(FlushRecord) error { return nil }

func (NopSink) RecordPushes([]PushRecord) error       { return nil }
func (NopSink) RecordCDRs([]CDRRecord) error          { return nil }
func (NopSink) RecordDrop(DropRecord) error           { return nil }
func (NopSink) RecordException(ExceptionRecord) error { return nil }
