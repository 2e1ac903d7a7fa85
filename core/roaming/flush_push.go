package roaming

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/roamsync/core/model"
)

func (p *Provider) pushContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.PushTimeout)
}

// pushData sends entries and returns the entries whose push failed.
func (p *Provider) pushData(ctx context.Context, op Operation, entries []*evseEntry, mode PushMode) (PushOutcome, []*evseEntry) {
	evses := make([]*model.EVSE, len(entries))
	for i, e := range entries {
		evses[i] = e.evse
	}
	pctx, cancel := p.pushContext(ctx)
	defer cancel()
	start := time.Now()
	res, err := callSafely(func() (PushResult, error) {
		return p.pusher.PushEVSEData(pctx, evses, mode)
	})
	out := p.outcome(op, mode, len(evses), res, err, time.Since(start))

	failed := failedIDs(res, err, evseIDs(entries))
	if failed == nil {
		return out, nil
	}
	var failedEntries []*evseEntry
	for _, e := range entries {
		if failed.has(e.evse.ID) {
			failedEntries = append(failedEntries, e)
		}
	}
	return out, failedEntries
}

// pushStatuses sends the current status of every EVSE referenced by entries,
// once per EVSE in first-seen order. It returns the identities whose push failed.
func (p *Provider) pushStatuses(ctx context.Context, entries []statusEntry, mode PushMode) (PushOutcome, idSet) {
	statuses := currentStatuses(entries)
	pctx, cancel := p.pushContext(ctx)
	defer cancel()
	start := time.Now()
	res, err := callSafely(func() (PushResult, error) {
		return p.pusher.PushEVSEStatus(pctx, statuses, mode)
	})
	out := p.outcome(OpEVSEStatus, mode, len(statuses), res, err, time.Since(start))
	return out, failedIDs(res, err, statusIDs(statuses))
}

func currentStatuses(entries []statusEntry) []model.EVSEStatus {
	seen := make(map[model.EVSEID]struct{}, len(entries))
	out := make([]model.EVSEStatus, 0, len(entries))
	for _, e := range entries {
		id := e.update.EVSEID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, e.update.EVSE.CurrentStatus())
	}
	return out
}

func statusIDs(statuses []model.EVSEStatus) []model.EVSEID {
	ids := make([]model.EVSEID, len(statuses))
	for i, s := range statuses {
		ids[i] = s.EVSEID
	}
	return ids
}

type idSet map[model.EVSEID]struct{}

func (s idSet) has(id model.EVSEID) bool {
	if s == nil {
		return false
	}
	_, ok := s[id]
	return ok
}

// failedIDs returns nil on full success, the rejected ids on partial success and
// every id of the batch otherwise.
func failedIDs(res PushResult, err error, all []model.EVSEID) idSet {
	if len(all) == 0 {
		return nil
	}
	if err != nil || !res.Accepted {
		s := make(idSet, len(all))
		for _, id := range all {
			s[id] = struct{}{}
		}
		return s
	}
	if len(res.Rejected) == 0 {
		return nil
	}
	s := make(idSet, len(res.Rejected))
	for _, id := range res.Rejected {
		s[id] = struct{}{}
	}
	return s
}

func (p *Provider) outcome(op Operation, mode PushMode, count int, res PushResult, err error, d time.Duration) PushOutcome {
	out := PushOutcome{
		Operation: op,
		Mode:      mode,
		Count:     count,
		BatchID:   res.BatchID,
		Accepted:  err == nil && res.Accepted,
		Duration:  d,
	}
	result := "success"
	switch {
	case err != nil:
		out.Error = err.Error()
		result = "error"
		p.log.Warnf("provider %s: %s push of %d entries failed: %v", p.id, op, count, err)
	case !res.Accepted:
		out.Error = fmt.Sprintf("%v: %s", ErrNotAccepted, res.Message)
		result = "rejected"
		p.log.Warnf("provider %s: %s push of %d entries not accepted: %s", p.id, op, count, res.Message)
	case len(res.Rejected) > 0:
		out.Rejected = res.Rejected
		result = "partial"
		p.log.Warnf("provider %s: %s push rejected %d of %d entries", p.id, op, len(res.Rejected), count)
	}
	pushTotal.WithLabelValues(p.id, string(op), mode.String(), result).Inc()
	pushLatency.WithLabelValues(p.id, string(op)).Observe(d.Seconds())
	return out
}

// splitEVSEs counts a failed attempt on each entry and separates the entries
// allowed another push from those that reached the attempt limit.
func (p *Provider) splitEVSEs(entries []*evseEntry) (retry, drop []*evseEntry) {
	for _, e := range entries {
		e.attempts++
		if e.attempts >= p.cfg.MaxPushAttempts {
			drop = append(drop, e)
		} else {
			retry = append(retry, e)
		}
	}
	return retry, drop
}

func (p *Provider) splitStatuses(entries []statusEntry, failed idSet) (retry, drop []statusEntry) {
	for _, e := range entries {
		if !failed.has(e.update.EVSEID()) {
			continue
		}
		e.attempts++
		if e.attempts >= p.cfg.MaxPushAttempts {
			drop = append(drop, e)
		} else {
			retry = append(retry, e)
		}
	}
	return retry, drop
}

func evseIDs(entries []*evseEntry) []model.EVSEID {
	ids := make([]model.EVSEID, len(entries))
	for i, e := range entries {
		ids[i] = e.evse.ID
	}
	return ids
}

func statusEntryIDs(entries []statusEntry) []model.EVSEID {
	ids := make([]model.EVSEID, len(entries))
	for i, e := range entries {
		ids[i] = e.update.EVSEID()
	}
	return ids
}

// drop reports entries given up on.
func (p *Provider) drop(container string, ids []model.EVSEID) {
	if len(ids) == 0 {
		return
	}
	droppedTotal.WithLabelValues(p.id, container).Add(float64(len(ids)))
	p.log.Warnw("dropping entries after repeated push failures", map[string]any{
		"provider":  p.id,
		"container": container,
		"evses":     ids,
		"attempts":  p.cfg.MaxPushAttempts,
	})
	p.monitor.CaptureMessage(
		fmt.Sprintf("roaming provider %s dropped %d %s entries", p.id, len(ids), container),
		map[string]string{"provider": p.id, "container": container},
	)
	p.publish(DroppedEvent{
		Provider:  p.id,
		Container: container,
		EVSEIDs:   ids,
		Attempts:  p.cfg.MaxPushAttempts,
		Time:      time.Now(),
	})
}
