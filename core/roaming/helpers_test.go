package roaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/roamsync/core/model"
)

type pushCall struct {
	Op       string
	Mode     PushMode
	EVSEs    []model.EVSEID
	Statuses []model.EVSEStatus
	Session  string
}

// fakePusher records every call and answers according to its fields.
type fakePusher struct {
	mu        sync.Mutex
	calls     []pushCall
	dataErr   error
	dataNack  bool
	rejected  []model.EVSEID
	statusErr error
	cdrErr    map[string]error
	cdrStatus map[string]CDRStatus
}

func (f *fakePusher) PushEVSEData(_ context.Context, evses []*model.EVSE, mode PushMode) (PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]model.EVSEID, len(evses))
	for i, e := range evses {
		ids[i] = e.ID
	}
	f.calls = append(f.calls, pushCall{Op: "data", Mode: mode, EVSEs: ids})
	if f.dataErr != nil {
		return PushResult{}, f.dataErr
	}
	if f.dataNack {
		return PushResult{Message: "nack"}, nil
	}
	return PushResult{BatchID: "batch", Accepted: true, Rejected: f.rejected}, nil
}

func (f *fakePusher) PushEVSEStatus(_ context.Context, statuses []model.EVSEStatus, mode PushMode) (PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{Op: "status", Mode: mode, Statuses: statuses})
	if f.statusErr != nil {
		return PushResult{}, f.statusErr
	}
	return PushResult{BatchID: "batch", Accepted: true}, nil
}

func (f *fakePusher) SendChargeDetailRecord(_ context.Context, cdr model.ChargeDetailRecord) (CDRResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{Op: "cdr", Session: cdr.SessionID})
	if err := f.cdrErr[cdr.SessionID]; err != nil {
		return CDRResult{}, err
	}
	if st, ok := f.cdrStatus[cdr.SessionID]; ok {
		return CDRResult{SessionID: cdr.SessionID, Status: st, Message: "declined"}, nil
	}
	return CDRResult{SessionID: cdr.SessionID, Status: CDRForwarded}, nil
}

func (f *fakePusher) Calls() []pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushCall(nil), f.calls...)
}

func (f *fakePusher) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

type panicPusher struct{ fakePusher }

func (p *panicPusher) PushEVSEData(context.Context, []*model.EVSE, PushMode) (PushResult, error) {
	panic("adapter bug")
}

type recordingMonitor struct {
	mu         sync.Mutex
	exceptions []error
	messages   []string
}

func (m *recordingMonitor) CaptureException(err error, _ map[string]string) {
	m.mu.Lock()
	m.exceptions = append(m.exceptions, err)
	m.mu.Unlock()
}

func (m *recordingMonitor) CaptureMessage(msg string, _ map[string]string) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
}

func (m *recordingMonitor) Recover()            {}
func (m *recordingMonitor) Flush(time.Duration) {}

func newEVSE(id string) *model.EVSE { return model.NewEVSE(model.EVSEID(id)) }

func setStatus(e *model.EVSE, s model.EVSEStatusType) (model.TimestampedStatus, model.TimestampedStatus) {
	n := model.TimestampedStatus{Status: s, Timestamp: time.Now()}
	return e.SetStatus(n), n
}

// newTestProvider returns a provider whose schedulers never fire, so flushes
// only run when a test calls them.
func newTestProvider(t *testing.T, p Pusher, opts ...Option) *Provider {
	t.Helper()
	return newTestProviderWithConfig(t, p, Config{DisableAutoUpload: true}, opts...)
}

func newTestProviderWithConfig(t *testing.T, p Pusher, cfg Config, opts ...Option) *Provider {
	t.Helper()
	prov, err := NewProvider("test", p, cfg, opts...)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	t.Cleanup(func() { _ = prov.Close(context.Background()) })
	return prov
}

func mustEnqueue(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

// waitEvent returns the first event on ch matching fn.
func waitEvent[T Event](t *testing.T, ch <-chan Event, timeout time.Duration, fn func(T) bool) T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-ch:
			if v, ok := e.(T); ok && fn(v) {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("no matching %T within %s", zero, timeout)
			return zero
		}
	}
}
