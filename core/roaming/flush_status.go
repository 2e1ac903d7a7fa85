package roaming

import (
	"context"
	"time"
)

// FlushStatus pushes pending status changes. Changes of EVSEs whose addition is
// still queued are moved to the delayed list and pushed by the service flush after
// the EVSE data.
func (p *Provider) FlushStatus(ctx context.Context) FlushReport {
	report := FlushReport{Provider: p.id, Kind: FlushKindStatus, Started: time.Now()}
	if !p.lock.TryLockFor(p.cfg.StatusLockTimeout) {
		lockContention.WithLabelValues(p.id, string(FlushKindStatus)).Inc()
		p.log.Warnf("provider %s: status flush skipped, lock not acquired within %s", p.id, p.cfg.StatusLockTimeout)
		report.Skipped = true
		p.statusTimer.Arm()
		return p.finish(&report)
	}
	snap, err := p.snapshotStatus()
	p.lock.Unlock()
	if err != nil {
		report.Error = p.reportException(FlushKindStatus, err).Error()
		return p.finish(&report)
	}
	if snap == nil {
		report.Empty = true
		return p.finish(&report)
	}
	report.Run = snap.run
	report.Promoted = snap.promoted
	if snap.promoted > 0 {
		p.log.Debugf("provider %s: %d status changes wait for their evse data", p.id, snap.promoted)
		p.serviceTimer.Arm()
	}
	if len(snap.entries) == 0 {
		return p.finish(&report)
	}

	mode := ModeUpdate
	if snap.run == 1 {
		mode = ModeFullLoad
	}
	out, failed := p.pushStatuses(ctx, snap.entries, mode)
	retry, drop := p.splitStatuses(snap.entries, failed)
	out.Requeued, out.Dropped = len(retry), len(drop)
	p.drop(ContainerFastStatus, statusEntryIDs(drop))
	report.Pushes = append(report.Pushes, out)

	if len(retry) > 0 {
		p.lock.Lock()
		retry = p.withoutRemoved(retry)
		p.q.fast = requeueStatuses(p.q.fast, retry)
		stats := p.q.stats()
		p.lock.Unlock()
		observeDepth(p.id, stats)
		requeuedTotal.WithLabelValues(p.id, ContainerFastStatus).Add(float64(len(retry)))
		p.log.Warnf("provider %s: requeued %d status changes", p.id, len(retry))
		p.statusTimer.Arm()
	}
	return p.finish(&report)
}

func (p *Provider) snapshotStatus() (snap *statusSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap, err = nil, panicError(r)
		}
	}()
	if p.beforeSnapshot != nil {
		p.beforeSnapshot(FlushKindStatus)
	}
	if len(p.q.fast) == 0 {
		return nil, nil
	}
	s := p.q.takeStatus()
	p.statusTimer.Disarm()
	return &s, nil
}
