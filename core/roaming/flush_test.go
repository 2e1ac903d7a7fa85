package roaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/roamsync/core/model"
	"github.com/kilianp07/roamsync/internal/eventbus"
)

func TestServiceFlushEmptiesContainers(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	a, b := newEVSE("DE*ABC*E1"), newEVSE("DE*ABC*E2")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))
	mustEnqueue(t, p.EnqueueEVSEDataUpdate(b, "max_power_kw", 11, 22))
	mustEnqueue(t, p.EnqueueEVSERemoval(newEVSE("DE*ABC*E3")))
	mustEnqueue(t, p.EnqueueChargeDetailRecord(model.ChargeDetailRecord{SessionID: "s1"}))

	rep := p.FlushService(ctx)
	if !rep.Executed() || rep.Failed() {
		t.Fatalf("unexpected report %+v", rep)
	}
	s := p.Stats()
	if s.Adds+s.Updates+s.Removes+s.DelayedStatus+s.CDRs != 0 {
		t.Fatalf("containers not empty after flush: %+v", s)
	}
	if _, status := p.NextFlush(); !status.IsZero() {
		t.Fatalf("status scheduler armed by service flush")
	}
}

func TestStatusWaitsForEVSEData(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	a := newEVSE("DE*ABC*E1")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))
	old, n := setStatus(a, model.StatusCharging)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))

	rep := p.FlushStatus(ctx)
	if rep.Promoted != 1 || len(rep.Pushes) != 0 {
		t.Fatalf("unexpected status report %+v", rep)
	}
	pending := p.Pending()
	if len(pending.DelayedStatus) != 1 || len(pending.FastStatus) != 0 {
		t.Fatalf("status change not delayed: %+v", pending)
	}
	if calls := fp.Calls(); len(calls) != 0 {
		t.Fatalf("status flush pushed %+v", calls)
	}

	p.FlushService(ctx)
	calls := fp.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %+v", calls)
	}
	if calls[0].Op != "data" || calls[0].Mode != ModeFullLoad || len(calls[0].EVSEs) != 1 || calls[0].EVSEs[0] != a.ID {
		t.Fatalf("unexpected data call %+v", calls[0])
	}
	if calls[1].Op != "status" || len(calls[1].Statuses) != 1 || calls[1].Statuses[0].EVSEID != a.ID {
		t.Fatalf("unexpected status call %+v", calls[1])
	}
	if calls[1].Statuses[0].Status.Status != model.StatusCharging {
		t.Fatalf("expected current status, got %v", calls[1].Statuses[0].Status.Status)
	}
}

func TestStatusNeverPushedBeforeDataAcrossFlushes(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	a := newEVSE("DE*ABC*E1")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))
	for _, s := range []model.EVSEStatusType{model.StatusAvailable, model.StatusCharging, model.StatusAvailable} {
		old, n := setStatus(a, s)
		mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
		p.FlushStatus(ctx)
	}
	if calls := fp.Calls(); len(calls) != 0 {
		t.Fatalf("pushed before data: %+v", calls)
	}
	if n := len(p.Pending().DelayedStatus); n != 3 {
		t.Fatalf("expected 3 delayed entries, got %d", n)
	}
	if runs := p.Stats().StatusRuns; runs != 3 {
		t.Fatalf("expected 3 status runs, got %d", runs)
	}
}

func TestRunCounterSelectsMode(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)

	mustEnqueue(t, p.EnqueueEVSEAddition(newEVSE("A")))
	p.FlushService(ctx)
	mustEnqueue(t, p.EnqueueEVSEAddition(newEVSE("B")))
	p.FlushService(ctx)
	mustEnqueue(t, p.EnqueueEVSEAddition(newEVSE("C")))
	rep := p.FlushService(ctx)

	calls := fp.Calls()
	want := []PushMode{ModeFullLoad, ModeInsert, ModeInsert}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %+v", len(want), calls)
	}
	for i, m := range want {
		if calls[i].Mode != m {
			t.Errorf("call %d: mode %v want %v", i, calls[i].Mode, m)
		}
	}
	if rep.Run != 3 {
		t.Fatalf("expected run 3, got %d", rep.Run)
	}
}

func TestStatusRunCounterSelectsMode(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	a := newEVSE("A")
	for i := 0; i < 2; i++ {
		old, n := setStatus(a, model.StatusCharging)
		mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
		p.FlushStatus(ctx)
	}
	calls := fp.Calls()
	if len(calls) != 2 || calls[0].Mode != ModeFullLoad || calls[1].Mode != ModeUpdate {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestEmptyFlushIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	for i := 0; i < 3; i++ {
		if rep := p.FlushService(ctx); !rep.Empty {
			t.Fatalf("expected empty service flush, got %+v", rep)
		}
		if rep := p.FlushStatus(ctx); !rep.Empty {
			t.Fatalf("expected empty status flush, got %+v", rep)
		}
	}
	if calls := fp.Calls(); len(calls) != 0 {
		t.Fatalf("empty flush pushed %+v", calls)
	}
	if s := p.Stats(); s.ServiceRuns != 0 || s.StatusRuns != 0 {
		t.Fatalf("run counters changed: %+v", s)
	}
}

func TestChargeDetailRecordsNoShortCircuit(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{cdrErr: map[string]error{"s1": errors.New("connection reset")}}
	spool := NewMemorySpool()
	p := newTestProvider(t, fp, WithCDRSpool(spool))
	mustEnqueue(t, p.EnqueueChargeDetailRecord(model.ChargeDetailRecord{SessionID: "s1"}))
	mustEnqueue(t, p.EnqueueChargeDetailRecord(model.ChargeDetailRecord{SessionID: "s2"}))

	rep := p.FlushService(ctx)

	calls := fp.Calls()
	if len(calls) != 2 || calls[0].Session != "s1" || calls[1].Session != "s2" {
		t.Fatalf("expected both records attempted in order, got %+v", calls)
	}
	if rep.CDRs[0].Status != CDRError || !rep.CDRs[0].Requeued {
		t.Fatalf("unexpected outcome %+v", rep.CDRs[0])
	}
	if rep.CDRs[1].Status != CDRForwarded {
		t.Fatalf("unexpected outcome %+v", rep.CDRs[1])
	}
	if got := p.Pending().CDRs; len(got) != 1 || got[0] != "s1" {
		t.Fatalf("failed record not requeued: %v", got)
	}
	if got, _ := spool.Load(ctx, "test"); len(got) != 1 || got[0].SessionID != "s1" {
		t.Fatalf("failed record not spooled: %+v", got)
	}

	fp.cdrErr = nil
	fp.Reset()
	p.FlushService(ctx)
	if got, _ := spool.Load(ctx, "test"); len(got) != 0 {
		t.Fatalf("delivered record still spooled: %+v", got)
	}
	if s := p.Stats(); s.CDRs != 0 {
		t.Fatalf("records left: %d", s.CDRs)
	}
}

func TestChargeDetailRecordNotForwardedIsTerminal(t *testing.T) {
	ctx := context.Background()
	mon := &recordingMonitor{}
	fp := &fakePusher{cdrStatus: map[string]CDRStatus{"s1": CDRNotForwarded}}
	p := newTestProvider(t, fp, WithMonitor(mon))
	mustEnqueue(t, p.EnqueueChargeDetailRecord(model.ChargeDetailRecord{SessionID: "s1"}))
	rep := p.FlushService(ctx)
	if rep.CDRs[0].Status != CDRNotForwarded || rep.CDRs[0].Requeued {
		t.Fatalf("unexpected outcome %+v", rep.CDRs[0])
	}
	if !rep.Failed() {
		t.Fatalf("declined record should mark the report failed")
	}
	if s := p.Stats(); s.CDRs != 0 {
		t.Fatalf("declined record requeued")
	}
	if len(mon.messages) != 1 {
		t.Fatalf("expected monitor message, got %v", mon.messages)
	}
}

func TestUpdatesOfAddedEVSEsAreSkipped(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	a, b := newEVSE("A"), newEVSE("B")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))
	mustEnqueue(t, p.EnqueueEVSEDataUpdate(a, "address", "", "Main St"))
	mustEnqueue(t, p.EnqueueEVSEDataUpdate(b, "address", "", "Main St"))
	p.FlushService(ctx)

	calls := fp.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %+v", calls)
	}
	if calls[1].Mode != ModeUpdate || len(calls[1].EVSEs) != 1 || calls[1].EVSEs[0] != b.ID {
		t.Fatalf("unexpected update call %+v", calls[1])
	}
}

func TestStatusPushDeduplicatesEVSEs(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	a, b := newEVSE("A"), newEVSE("B")
	for _, step := range []struct {
		e *model.EVSE
		s model.EVSEStatusType
	}{{a, model.StatusAvailable}, {b, model.StatusBlocked}, {a, model.StatusCharging}} {
		old, n := setStatus(step.e, step.s)
		mustEnqueue(t, p.EnqueueEVSEStatusUpdate(step.e, old, n))
	}
	p.FlushStatus(ctx)
	calls := fp.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %+v", calls)
	}
	st := calls[0].Statuses
	if len(st) != 2 || st[0].EVSEID != a.ID || st[1].EVSEID != b.ID {
		t.Fatalf("unexpected statuses %+v", st)
	}
	if st[0].Status.Status != model.StatusCharging {
		t.Fatalf("expected latest status, got %v", st[0].Status.Status)
	}
}

func TestRemovalsAreReportedNotPushed(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	a := newEVSE("A")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))
	p.FlushService(ctx)
	fp.Reset()

	mustEnqueue(t, p.EnqueueEVSERemoval(a))
	if got := p.Pending().Removes; len(got) != 1 {
		t.Fatalf("removal not recorded: %v", got)
	}
	rep := p.FlushService(ctx)
	if len(rep.UnpushedRemovals) != 1 || rep.UnpushedRemovals[0] != a.ID {
		t.Fatalf("unexpected report %+v", rep)
	}
	if calls := fp.Calls(); len(calls) != 0 {
		t.Fatalf("removal pushed: %+v", calls)
	}
	if s := p.Stats(); s.Removes != 0 {
		t.Fatalf("remove set not cleared")
	}
}

func TestRemovalBeforeFirstPush(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{}
	p := newTestProvider(t, fp)
	a := newEVSE("A")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))
	mustEnqueue(t, p.EnqueueEVSEDataUpdate(a, "address", "", "x"))
	old, n := setStatus(a, model.StatusAvailable)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
	mustEnqueue(t, p.EnqueueEVSERemoval(a))

	if s := p.Stats(); s.Total() != 0 {
		t.Fatalf("expected nothing pending, got %+v", s)
	}
	p.FlushService(ctx)
	p.FlushStatus(ctx)
	if calls := fp.Calls(); len(calls) != 0 {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestFailedAdditionRequeuedWithStatuses(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{dataErr: errors.New("partner unavailable")}
	p := newTestProvider(t, fp)
	a := newEVSE("A")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))
	old, n := setStatus(a, model.StatusCharging)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
	p.FlushStatus(ctx)

	rep := p.FlushService(ctx)
	if len(rep.Pushes) != 1 || rep.Pushes[0].Requeued != 1 || rep.Pushes[0].Error == "" {
		t.Fatalf("unexpected report %+v", rep.Pushes)
	}
	if calls := fp.Calls(); len(calls) != 1 || calls[0].Op != "data" {
		t.Fatalf("status pushed although data failed: %+v", calls)
	}
	pending := p.Pending()
	if len(pending.Adds) != 1 || len(pending.DelayedStatus) != 1 {
		t.Fatalf("expected addition and status requeued: %+v", pending)
	}

	fp.dataErr = nil
	fp.Reset()
	p.FlushService(ctx)
	calls := fp.Calls()
	if len(calls) != 2 || calls[0].Mode != ModeInsert || calls[1].Op != "status" || calls[1].Mode != ModeUpdate {
		t.Fatalf("unexpected retry calls %+v", calls)
	}
}

// gatedPusher blocks data pushes until the test releases them.
type gatedPusher struct {
	fakePusher
	entered chan struct{}
	release chan error
}

func newGatedPusher() *gatedPusher {
	return &gatedPusher{entered: make(chan struct{}, 1), release: make(chan error)}
}

func (g *gatedPusher) PushEVSEData(ctx context.Context, evses []*model.EVSE, mode PushMode) (PushResult, error) {
	g.entered <- struct{}{}
	err := <-g.release
	g.mu.Lock()
	g.dataErr = err
	g.mu.Unlock()
	return g.fakePusher.PushEVSEData(ctx, evses, mode)
}

func TestStatusHeldWhileAdditionInFlight(t *testing.T) {
	ctx := context.Background()
	gp := newGatedPusher()
	p := newTestProvider(t, gp)
	a := newEVSE("A")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))

	done := make(chan FlushReport, 1)
	go func() { done <- p.FlushService(ctx) }()
	select {
	case <-gp.entered:
	case <-time.After(time.Second):
		t.Fatal("data push not started")
	}

	old, n := setStatus(a, model.StatusCharging)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
	rep := p.FlushStatus(ctx)
	if rep.Promoted != 1 || len(rep.Pushes) != 0 {
		t.Fatalf("status of in-flight addition not held: %+v", rep)
	}

	gp.release <- errors.New("partner unavailable")
	svc := <-done
	if len(svc.Pushes) != 1 || svc.Pushes[0].Requeued != 1 {
		t.Fatalf("unexpected service report %+v", svc.Pushes)
	}
	for _, c := range gp.Calls() {
		if c.Op == "status" {
			t.Fatalf("status pushed before evse data: %+v", gp.Calls())
		}
	}
	pending := p.Pending()
	if len(pending.Adds) != 1 || len(pending.DelayedStatus) != 1 || len(pending.FastStatus) != 0 {
		t.Fatalf("expected addition and held status pending: %+v", pending)
	}

	// a status flush after the failed push keeps holding the status
	old, n = setStatus(a, model.StatusAvailable)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
	if rep := p.FlushStatus(ctx); rep.Promoted != 1 || len(rep.Pushes) != 0 {
		t.Fatalf("status pushed for unregistered evse: %+v", rep)
	}
}

func TestStatusOfDroppedInFlightAdditionDiscarded(t *testing.T) {
	ctx := context.Background()
	gp := newGatedPusher()
	p := newTestProviderWithConfig(t, gp, Config{DisableAutoUpload: true, MaxPushAttempts: 1})
	a := newEVSE("A")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))

	done := make(chan FlushReport, 1)
	go func() { done <- p.FlushService(ctx) }()
	<-gp.entered
	old, n := setStatus(a, model.StatusCharging)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
	p.FlushStatus(ctx)
	gp.release <- errors.New("partner unavailable")
	<-done

	if s := p.Stats(); s.Total() != 0 {
		t.Fatalf("expected empty queues, got %+v", s)
	}
}

func TestDropAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewTyped[Event]()
	sub := bus.Subscribe()
	mon := &recordingMonitor{}
	fp := &fakePusher{dataNack: true}
	cfg := Config{DisableAutoUpload: true, MaxPushAttempts: 2}
	p := newTestProviderWithConfig(t, fp, cfg, WithEventBus(bus), WithMonitor(mon))
	a := newEVSE("A")
	mustEnqueue(t, p.EnqueueEVSEAddition(a))
	old, n := setStatus(a, model.StatusCharging)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
	p.FlushStatus(ctx)

	p.FlushService(ctx)
	if got := p.Pending().Adds; len(got) != 1 {
		t.Fatalf("first failure should requeue, got %v", got)
	}
	rep := p.FlushService(ctx)
	if rep.Pushes[0].Dropped != 1 {
		t.Fatalf("expected drop, got %+v", rep.Pushes[0])
	}
	if s := p.Stats(); s.Total() != 0 {
		t.Fatalf("expected empty queues, got %+v", s)
	}
	ev := waitEvent(t, sub, time.Second, func(e DroppedEvent) bool { return e.Container == ContainerAdd })
	if len(ev.EVSEIDs) != 1 || ev.EVSEIDs[0] != a.ID || ev.Attempts != 2 {
		t.Fatalf("unexpected event %+v", ev)
	}
	waitEvent(t, sub, time.Second, func(e DroppedEvent) bool { return e.Container == ContainerDelayedStatus })
	if len(mon.messages) != 2 {
		t.Fatalf("expected 2 monitor messages, got %v", mon.messages)
	}
}

func TestRejectedEVSEsRequeued(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{rejected: []model.EVSEID{"B"}}
	p := newTestProvider(t, fp)
	mustEnqueue(t, p.EnqueueEVSEAddition(newEVSE("A")))
	mustEnqueue(t, p.EnqueueEVSEAddition(newEVSE("B")))

	rep := p.FlushService(ctx)
	out := rep.Pushes[0]
	if !out.Accepted || len(out.Rejected) != 1 || out.Requeued != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := p.Pending().Adds; len(got) != 1 || got[0] != "B" {
		t.Fatalf("unexpected requeue %v", got)
	}
}

func TestStatusFailureRequeued(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{statusErr: errors.New("timeout")}
	p := newTestProvider(t, fp)
	a := newEVSE("A")
	old, n := setStatus(a, model.StatusCharging)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
	rep := p.FlushStatus(ctx)
	if len(rep.Pushes) != 1 || rep.Pushes[0].Requeued != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if got := p.Pending().FastStatus; len(got) != 1 {
		t.Fatalf("status not requeued: %v", got)
	}
}

func TestRequeueSkipsEVSERemovedMeanwhile(t *testing.T) {
	ctx := context.Background()
	fp := &fakePusher{statusErr: errors.New("timeout")}
	p := newTestProvider(t, fp)
	a := newEVSE("A")
	old, n := setStatus(a, model.StatusCharging)
	mustEnqueue(t, p.EnqueueEVSEStatusUpdate(a, old, n))
	snapTaken := make(chan struct{})
	// hold the pusher until the removal went through
	fp.mu.Lock()
	go func() {
		<-snapTaken
		_ = p.EnqueueEVSERemoval(a)
		fp.mu.Unlock()
	}()
	p.beforeSnapshot = func(FlushKind) { close(snapTaken) }
	p.FlushStatus(ctx)
	if got := p.Pending().FastStatus; len(got) != 0 {
		t.Fatalf("status of removed evse requeued: %v", got)
	}
}

func TestBookkeepingFailureIsReported(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewTyped[Event]()
	sub := bus.Subscribe()
	mon := &recordingMonitor{}
	fp := &fakePusher{}
	p := newTestProvider(t, fp, WithEventBus(bus), WithMonitor(mon))
	mustEnqueue(t, p.EnqueueEVSEAddition(newEVSE("A")))
	p.beforeSnapshot = func(FlushKind) {
		panic(fmt.Errorf("snapshot: %w", fmt.Errorf("copy: %w", io.ErrUnexpectedEOF)))
	}

	rep := p.FlushService(ctx)
	if rep.Error != io.ErrUnexpectedEOF.Error() {
		t.Fatalf("expected innermost error, got %q", rep.Error)
	}
	ev := waitEvent(t, sub, time.Second, func(ExceptionEvent) bool { return true })
	if ev.Err != io.ErrUnexpectedEOF || ev.Kind != FlushKindService {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(mon.exceptions) != 1 {
		t.Fatalf("exception not captured")
	}
	s := p.Stats()
	if s.Adds != 1 || s.ServiceRuns != 0 {
		t.Fatalf("failed bookkeeping changed the queues: %+v", s)
	}

	p.beforeSnapshot = nil
	if rep := p.FlushService(ctx); !rep.Executed() || rep.Run != 1 {
		t.Fatalf("lock not released after failure: %+v", rep)
	}
}

func TestFlushSkippedWhenLockBusy(t *testing.T) {
	ctx := context.Background()
	cfg := Config{DisableAutoUpload: true, StatusLockTimeout: 20 * time.Millisecond}
	p := newTestProviderWithConfig(t, &fakePusher{}, cfg)
	mustEnqueue(t, p.EnqueueEVSEAddition(newEVSE("A")))

	p.lock.Lock()
	service := p.FlushService(ctx)
	status := p.FlushStatus(ctx)
	p.lock.Unlock()

	if !service.Skipped || !status.Skipped {
		t.Fatalf("expected skipped flushes, got %+v %+v", service, status)
	}
	if service.Result() != "skipped" {
		t.Fatalf("unexpected result %s", service.Result())
	}
	if s := p.Stats(); s.Adds != 1 || s.ServiceRuns != 0 {
		t.Fatalf("skipped flush changed queues: %+v", s)
	}
}

func TestPusherPanicIsContained(t *testing.T) {
	ctx := context.Background()
	pp := &panicPusher{}
	p := newTestProvider(t, pp)
	mustEnqueue(t, p.EnqueueEVSEAddition(newEVSE("A")))
	mustEnqueue(t, p.EnqueueChargeDetailRecord(model.ChargeDetailRecord{SessionID: "s1"}))

	rep := p.FlushService(ctx)
	if len(rep.Pushes) != 1 || !strings.Contains(rep.Pushes[0].Error, ErrPusherPanic.Error()) {
		t.Fatalf("unexpected report %+v", rep.Pushes)
	}
	if len(rep.CDRs) != 1 || rep.CDRs[0].Status != CDRForwarded {
		t.Fatalf("record push should run after a panicking data push: %+v", rep.CDRs)
	}
	if got := p.Pending().Adds; len(got) != 1 {
		t.Fatalf("addition not requeued after panic: %v", got)
	}
}

func TestInnermost(t *testing.T) {
	base := errors.New("root")
	if got := innermost(fmt.Errorf("a: %w", fmt.Errorf("b: %w", base))); got != base {
		t.Fatalf("got %v", got)
	}
	if innermost(nil) != nil {
		t.Fatalf("nil error")
	}
}
