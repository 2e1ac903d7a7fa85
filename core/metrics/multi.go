package metrics

import "errors"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordFlush forwards the record to all sinks. Every sink is called; the
// errors are joined.
func (m *MultiSink) RecordFlush(rec FlushRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordFlush(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordPushes forwards push records to sinks supporting them.
func (m *MultiSink) RecordPushes(recs []PushRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(PushRecorder); ok {
			if err := r.RecordPushes(recs); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordCDRs forwards charge detail record outcomes.
func (m *MultiSink) RecordCDRs(recs []CDRRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(CDRRecorder); ok {
			if err := r.RecordCDRs(recs); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordDrop forwards drop records.
func (m *MultiSink) RecordDrop(rec DropRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(DropRecorder); ok {
			if err := r.RecordDrop(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordException forwards exception records.
func (m *MultiSink) RecordException(rec ExceptionRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(ExceptionRecorder); ok {
			if err := r.RecordException(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases the sinks holding resources, such as the influx writer.
func (m *MultiSink) Close() { closeSinks(m.Sinks) }
