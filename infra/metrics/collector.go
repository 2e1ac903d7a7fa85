package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/roamsync/core/metrics"
	"github.com/kilianp07/roamsync/core/roaming"
	"github.com/kilianp07/roamsync/internal/eventbus"
)

// StartEventCollector subscribes to the provider event bus and records metrics
// for events. It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.Subscriber[roaming.Event], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev roaming.Event) {
	switch e := ev.(type) {
	case roaming.FlushEvent:
		r := e.Report
		_ = sink.RecordFlush(flushRecord(r))
		if rec, ok := sink.(coremetrics.PushRecorder); ok && len(r.Pushes) > 0 {
			_ = rec.RecordPushes(pushRecords(r))
		}
		if rec, ok := sink.(coremetrics.CDRRecorder); ok && len(r.CDRs) > 0 {
			_ = rec.RecordCDRs(cdrRecords(r))
		}
	case roaming.DroppedEvent:
		if rec, ok := sink.(coremetrics.DropRecorder); ok {
			_ = rec.RecordDrop(coremetrics.DropRecord{
				Provider:  e.Provider,
				Container: e.Container,
				Count:     len(e.EVSEIDs),
				Time:      e.Time,
			})
		}
	case roaming.ExceptionEvent:
		if rec, ok := sink.(coremetrics.ExceptionRecorder); ok {
			msg := ""
			if e.Err != nil {
				msg = e.Err.Error()
			}
			_ = rec.RecordException(coremetrics.ExceptionRecord{
				Provider: e.Provider,
				Kind:     string(e.Kind),
				Error:    msg,
				Time:     e.Time,
			})
		}
	}
}

// flushRecord converts a flush report.
func flushRecord(r roaming.FlushReport) coremetrics.FlushRecord {
	return coremetrics.FlushRecord{
		Provider: r.Provider,
		Kind:     string(r.Kind),
		Run:      r.Run,
		Result:   r.Result(),
		Pushes:   len(r.Pushes),
		Promoted: r.Promoted,
		Unpushed: len(r.UnpushedRemovals),
		Duration: r.Duration,
		Time:     r.Started,
	}
}

// pushRecords converts the pushes of a flush report.
func pushRecords(r roaming.FlushReport) []coremetrics.PushRecord {
	out := make([]coremetrics.PushRecord, 0, len(r.Pushes))
	for _, p := range r.Pushes {
		out = append(out, coremetrics.PushRecord{
			Provider:  r.Provider,
			Operation: string(p.Operation),
			Mode:      p.Mode.String(),
			Count:     p.Count,
			Accepted:  p.Accepted,
			Rejected:  len(p.Rejected),
			Requeued:  p.Requeued,
			Dropped:   p.Dropped,
			Latency:   p.Duration,
			Time:      r.Started,
		})
	}
	return out
}

// cdrRecords converts the charge detail record outcomes of a flush report.
func cdrRecords(r roaming.FlushReport) []coremetrics.CDRRecord {
	out := make([]coremetrics.CDRRecord, 0, len(r.CDRs))
	for _, c := range r.CDRs {
		out = append(out, coremetrics.CDRRecord{
			Provider:  r.Provider,
			SessionID: c.SessionID,
			Status:    c.Status.String(),
			Requeued:  c.Requeued,
			Time:      r.Started,
		})
	}
	return out
}
