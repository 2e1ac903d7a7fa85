package roaming

import (
	"context"
	"time"

	"github.com/kilianp07/roamsync/core/model"
)

// serviceRequeue collects the entries returned to the queues after a service
// flush.
type serviceRequeue struct {
	updates []*evseEntry
	delayed []statusEntry
	cdrs    []cdrEntry
}

func (r serviceRequeue) empty() bool {
	return len(r.updates) == 0 && len(r.delayed) == 0 && len(r.cdrs) == 0
}

// FlushService pushes pending EVSE data, delayed status changes and charge detail
// records. The queues are snapshotted and cleared under the provider lock; the
// pushes run afterwards in the order additions, updates, statuses, records, and
// a failed push does not prevent the following ones.
func (p *Provider) FlushService(ctx context.Context) FlushReport {
	report := FlushReport{Provider: p.id, Kind: FlushKindService, Started: time.Now()}
	if !p.lock.TryLockFor(p.cfg.ServiceLockWait) {
		lockContention.WithLabelValues(p.id, string(FlushKindService)).Inc()
		p.log.Debugf("provider %s: service flush skipped, lock busy", p.id)
		report.Skipped = true
		p.serviceTimer.Arm()
		return p.finish(&report)
	}
	snap, err := p.snapshotService()
	p.lock.Unlock()
	if err != nil {
		report.Error = p.reportException(FlushKindService, err).Error()
		return p.finish(&report)
	}
	if snap == nil {
		report.Empty = true
		return p.finish(&report)
	}
	report.Run = snap.run
	p.log.Infof("provider %s: service flush run %d: %d additions, %d updates, %d delayed statuses, %d removals, %d records",
		p.id, snap.run, len(snap.adds), len(snap.updates), len(snap.delayed), len(snap.removes), len(snap.cdrs))

	var rq serviceRequeue

	// additions; the first run replaces the partner's data set
	failedAdds := make(map[model.EVSEID]bool)
	if len(snap.adds) > 0 {
		mode := ModeInsert
		if snap.run == 1 {
			mode = ModeFullLoad
		}
		out, failed := p.pushData(ctx, OpEVSEAdd, snap.adds, mode)
		retry, drop := p.splitEVSEs(failed)
		for _, e := range retry {
			failedAdds[e.evse.ID] = true
		}
		for _, e := range drop {
			failedAdds[e.evse.ID] = false
		}
		out.Requeued, out.Dropped = len(retry), len(drop)
		p.drop(ContainerAdd, evseIDs(drop))
		p.settleAdds(snap.adds, retry, drop)
		report.Pushes = append(report.Pushes, out)
	}

	// updates of EVSEs not part of this addition batch
	added := make(map[model.EVSEID]struct{}, len(snap.adds))
	for _, e := range snap.adds {
		added[e.evse.ID] = struct{}{}
	}
	var updates []*evseEntry
	for _, e := range snap.updates {
		if _, ok := added[e.evse.ID]; !ok {
			updates = append(updates, e)
		}
	}
	if len(updates) > 0 {
		out, failed := p.pushData(ctx, OpEVSEUpdate, updates, ModeUpdate)
		retry, drop := p.splitEVSEs(failed)
		out.Requeued, out.Dropped = len(retry), len(drop)
		rq.updates = retry
		p.drop(ContainerUpdate, evseIDs(drop))
		report.Pushes = append(report.Pushes, out)
	}

	// delayed statuses; those of EVSEs whose addition failed wait for it
	var (
		delayed  []statusEntry
		held     []statusEntry
		orphaned []statusEntry
	)
	for _, e := range snap.delayed {
		retried, failed := failedAdds[e.update.EVSEID()]
		switch {
		case !failed:
			delayed = append(delayed, e)
		case retried:
			held = append(held, e)
		default:
			orphaned = append(orphaned, e)
		}
	}
	rq.delayed = held
	p.drop(ContainerDelayedStatus, statusEntryIDs(orphaned))
	if len(delayed) > 0 {
		mode := ModeUpdate
		if snap.run == 1 {
			mode = ModeFullLoad
		}
		out, failed := p.pushStatuses(ctx, delayed, mode)
		retry, drop := p.splitStatuses(delayed, failed)
		out.Requeued, out.Dropped = len(retry), len(drop)
		rq.delayed = append(rq.delayed, retry...)
		p.drop(ContainerDelayedStatus, statusEntryIDs(drop))
		report.Pushes = append(report.Pushes, out)
	}

	// charge detail records, one by one
	for _, c := range snap.cdrs {
		out, requeue := p.sendCDR(ctx, c)
		report.CDRs = append(report.CDRs, out)
		if requeue != nil {
			rq.cdrs = append(rq.cdrs, *requeue)
		}
	}

	if len(snap.removes) > 0 {
		report.UnpushedRemovals = evseIDs(snap.removes)
		p.log.Warnw("evse removals are not pushed to the partner", map[string]any{
			"provider": p.id,
			"evses":    report.UnpushedRemovals,
		})
	}

	if !rq.empty() {
		p.requeueService(rq)
	}
	return p.finish(&report)
}

func (p *Provider) snapshotService() (snap *serviceSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap, err = nil, panicError(r)
		}
	}()
	if p.beforeSnapshot != nil {
		p.beforeSnapshot(FlushKindService)
	}
	if p.q.serviceEmpty() {
		return nil, nil
	}
	s := p.q.takeService()
	p.serviceTimer.Disarm()
	return &s, nil
}

// sendCDR pushes one record. Records that could not be delivered are spooled and
// returned for requeueing.
func (p *Provider) sendCDR(ctx context.Context, c cdrEntry) (CDROutcome, *cdrEntry) {
	pctx, cancel := p.pushContext(ctx)
	res, err := callSafely(func() (CDRResult, error) {
		return p.pusher.SendChargeDetailRecord(pctx, c.cdr)
	})
	cancel()
	out := CDROutcome{SessionID: c.cdr.SessionID, Status: res.Status}
	if err != nil {
		out.Status = CDRError
		out.Error = err.Error()
	} else if out.Status != CDRForwarded && out.Status != CDRNotForwarded {
		out.Status = CDRError
		out.Error = res.Message
	}
	pushTotal.WithLabelValues(p.id, "cdr", "none", out.Status.String()).Inc()

	switch out.Status {
	case CDRForwarded:
		p.unspool(ctx, c)
		return out, nil
	case CDRNotForwarded:
		p.log.Warnf("provider %s: charge detail record %s not forwarded: %s", p.id, c.cdr.SessionID, res.Message)
		p.monitor.CaptureMessage("charge detail record not forwarded",
			map[string]string{"provider": p.id, "session": c.cdr.SessionID})
		p.unspool(ctx, c)
		return out, nil
	}
	p.log.Warnf("provider %s: charge detail record %s failed: %s", p.id, c.cdr.SessionID, out.Error)
	c.attempts++
	if p.spool != nil && !c.spooled {
		sctx, cancel := p.pushContext(context.WithoutCancel(ctx))
		if err := p.spool.Save(sctx, p.id, c.cdr); err != nil {
			p.log.Errorf("provider %s: spool charge detail record %s: %v", p.id, c.cdr.SessionID, err)
		} else {
			c.spooled = true
		}
		cancel()
	}
	out.Requeued = true
	return out, &c
}

func (p *Provider) unspool(ctx context.Context, c cdrEntry) {
	if p.spool == nil || !c.spooled {
		return
	}
	sctx, cancel := p.pushContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := p.spool.Remove(sctx, p.id, c.cdr.SessionID); err != nil {
		p.log.Errorf("provider %s: remove spooled charge detail record %s: %v", p.id, c.cdr.SessionID, err)
	}
}

// settleAdds ends the in-flight state of an addition batch. Failed additions
// return to the add set before the lock is released, so status flushes keep
// holding their statuses; held statuses of dropped additions are discarded.
func (p *Provider) settleAdds(batch, retry, drop []*evseEntry) {
	p.lock.Lock()
	for _, e := range batch {
		delete(p.q.inflight, e.evse.ID)
	}
	n := p.q.requeueAdds(retry)
	var orphaned []statusEntry
	for _, e := range drop {
		if p.q.unregistered(e.evse.ID) {
			continue
		}
		var gone []statusEntry
		p.q.delayed, gone = splitByEVSE(p.q.delayed, e.evse.ID)
		orphaned = append(orphaned, gone...)
	}
	stats := p.q.stats()
	p.lock.Unlock()

	observeDepth(p.id, stats)
	p.drop(ContainerDelayedStatus, statusEntryIDs(orphaned))
	if n > 0 {
		requeuedTotal.WithLabelValues(p.id, ContainerAdd).Add(float64(n))
		p.log.Warnf("provider %s: requeued %d additions", p.id, n)
		p.serviceTimer.Arm()
	}
}

// splitByEVSE separates the entries of one EVSE from the others.
func splitByEVSE(entries []statusEntry, id model.EVSEID) (keep, match []statusEntry) {
	for _, e := range entries {
		if e.update.EVSEID() == id {
			match = append(match, e)
			continue
		}
		keep = append(keep, e)
	}
	return keep, match
}

func (p *Provider) requeueService(rq serviceRequeue) {
	p.lock.Lock()
	var updates []*evseEntry
	for _, e := range rq.updates {
		if !p.q.adds.has(e.evse.ID) {
			updates = append(updates, e)
		}
	}
	upd := p.q.requeueEVSEs(p.q.updates, updates)
	delayed := p.withoutRemoved(rq.delayed)
	p.q.delayed = requeueStatuses(p.q.delayed, delayed)
	p.q.requeueCDRs(rq.cdrs)
	stats := p.q.stats()
	p.lock.Unlock()

	observeDepth(p.id, stats)
	requeuedTotal.WithLabelValues(p.id, ContainerUpdate).Add(float64(upd))
	requeuedTotal.WithLabelValues(p.id, ContainerDelayedStatus).Add(float64(len(delayed)))
	requeuedTotal.WithLabelValues(p.id, ContainerCDR).Add(float64(len(rq.cdrs)))
	p.log.Warnf("provider %s: requeued %d updates, %d statuses, %d records",
		p.id, upd, len(delayed), len(rq.cdrs))
	p.serviceTimer.Arm()
}

// withoutRemoved filters out status entries of EVSEs removed since the snapshot.
// Must be called with the lock held.
func (p *Provider) withoutRemoved(entries []statusEntry) []statusEntry {
	var out []statusEntry
	for _, e := range entries {
		if !p.q.removes.has(e.update.EVSEID()) {
			out = append(out, e)
		}
	}
	return out
}
