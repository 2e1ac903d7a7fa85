package roaming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/roamsync/core/logger"
	"github.com/kilianp07/roamsync/core/model"
	"github.com/kilianp07/roamsync/core/monitoring"
	"github.com/kilianp07/roamsync/internal/eventbus"
)

// Provider synchronizes the EVSE mutations of one roaming partner.
type Provider struct {
	id      string
	pusher  Pusher
	cfg     Config
	log     logger.Logger
	filter  EVSEFilter
	bus     eventbus.Publisher[Event]
	spool   CDRSpool
	monitor monitoring.Monitor

	lock *timedMutex
	q    *queueStore

	serviceTimer *Debouncer
	statusTimer  *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	stateMu sync.Mutex
	closed  bool
	flushes sync.WaitGroup

	// beforeSnapshot runs under the lock right before a snapshot is taken.
	beforeSnapshot func(FlushKind)
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// WithFilter adds an inclusion filter on top of Config.Filter.
func WithFilter(f EVSEFilter) Option {
	return func(p *Provider) { p.filter = AllOf(p.filter, f) }
}

// WithEventBus publishes flush, exception and drop events on bus.
func WithEventBus(bus eventbus.Publisher[Event]) Option {
	return func(p *Provider) { p.bus = bus }
}

// WithCDRSpool persists charge detail records whose push failed.
func WithCDRSpool(s CDRSpool) Option {
	return func(p *Provider) { p.spool = s }
}

// WithMonitor routes bookkeeping failures to an error tracker.
func WithMonitor(m monitoring.Monitor) Option {
	return func(p *Provider) {
		if m != nil {
			p.monitor = m
		}
	}
}

// NewProvider creates a Provider pushing through pusher. Records left in the
// spool by a previous run are queued again. Unless auto upload is disabled both
// schedulers are armed, so the first flushes run one interval after creation.
func NewProvider(id string, pusher Pusher, cfg Config, opts ...Option) (*Provider, error) {
	if id == "" {
		return nil, errors.New("provider id is empty")
	}
	if pusher == nil {
		return nil, errors.New("pusher is nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("provider %s: %w", id, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		id:      id,
		pusher:  pusher,
		cfg:     cfg,
		log:     nopLogger{},
		filter:  cfg.Filter.Build(),
		monitor: monitoring.Current(),
		lock:    newTimedMutex(),
		q:       newQueueStore(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.serviceTimer = NewDebouncer(cfg.ServiceCheckInterval, p.onServiceTimer)
	p.statusTimer = NewDebouncer(cfg.StatusCheckInterval, p.onStatusTimer)
	if cfg.DisableAutoUpload {
		p.serviceTimer.Disable()
		p.statusTimer.Disable()
	}
	if err := p.restoreSpool(); err != nil {
		p.log.Errorf("provider %s: restore cdr spool: %v", id, err)
	}
	p.serviceTimer.Arm()
	p.statusTimer.Arm()
	return p, nil
}

func (p *Provider) restoreSpool() error {
	if p.spool == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.PushTimeout)
	defer cancel()
	cdrs, err := p.spool.Load(ctx, p.id)
	if err != nil {
		return err
	}
	p.lock.Lock()
	for _, c := range cdrs {
		p.q.appendCDR(c, true)
	}
	p.lock.Unlock()
	if len(cdrs) > 0 {
		p.log.Infof("provider %s: restored %d spooled charge detail records", p.id, len(cdrs))
	}
	return nil
}

// ID returns the provider identity.
func (p *Provider) ID() string { return p.id }

// Config returns the effective configuration.
func (p *Provider) Config() Config { return p.cfg }

func (p *Provider) isClosed() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.closed
}

func (p *Provider) checkEVSE(evse *model.EVSE) error {
	if p.isClosed() {
		return ErrClosed
	}
	if err := evse.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEVSE, err)
	}
	return nil
}

func (p *Provider) included(evse *model.EVSE) bool {
	if p.filter == nil || p.filter(evse) {
		return true
	}
	filteredTotal.WithLabelValues(p.id).Inc()
	p.log.Debugf("provider %s: evse %s excluded by filter", p.id, evse.ID)
	return false
}

// mutate applies fn to the queues under the lock and refreshes the depth gauges.
func (p *Provider) mutate(fn func(q *queueStore)) {
	p.lock.Lock()
	fn(p.q)
	stats := p.q.stats()
	p.lock.Unlock()
	observeDepth(p.id, stats)
}

// EnqueueEVSEAddition records a new EVSE. Its data is pushed by the next
// service flush.
func (p *Provider) EnqueueEVSEAddition(evse *model.EVSE) error {
	if err := p.checkEVSE(evse); err != nil {
		return err
	}
	if !p.included(evse) {
		return nil
	}
	p.mutate(func(q *queueStore) { q.addEVSE(evse) })
	enqueuedTotal.WithLabelValues(p.id, ContainerAdd).Inc()
	p.serviceTimer.Arm()
	return nil
}

// EnqueueEVSERemoval records the removal of an EVSE. An EVSE whose addition has
// not been pushed yet is forgotten together with its pending updates and status
// changes.
func (p *Provider) EnqueueEVSERemoval(evse *model.EVSE) error {
	if err := p.checkEVSE(evse); err != nil {
		return err
	}
	if !p.included(evse) {
		return nil
	}
	var recorded bool
	p.mutate(func(q *queueStore) { recorded = q.removeEVSE(evse) })
	enqueuedTotal.WithLabelValues(p.id, ContainerRemove).Inc()
	if recorded {
		p.serviceTimer.Arm()
	} else {
		p.log.Debugf("provider %s: evse %s removed before its first push", p.id, evse.ID)
	}
	return nil
}

// EnqueueEVSEDataUpdate records a change of EVSE data. The property name and
// values are informational; the current EVSE data is pushed.
func (p *Provider) EnqueueEVSEDataUpdate(evse *model.EVSE, property string, oldValue, newValue any) error {
	if err := p.checkEVSE(evse); err != nil {
		return err
	}
	if !p.included(evse) {
		return nil
	}
	p.mutate(func(q *queueStore) { q.updateEVSE(evse) })
	enqueuedTotal.WithLabelValues(p.id, ContainerUpdate).Inc()
	p.log.Debugw("evse data changed", map[string]any{
		"provider": p.id,
		"evse":     string(evse.ID),
		"property": property,
		"old":      oldValue,
		"new":      newValue,
	})
	p.serviceTimer.Arm()
	return nil
}

// EnqueueEVSEStatusUpdate records a status transition. The owning entity model is
// expected to have applied newStatus to the EVSE already; the status pushed is the
// one current at flush time.
func (p *Provider) EnqueueEVSEStatusUpdate(evse *model.EVSE, oldStatus, newStatus model.TimestampedStatus) error {
	if err := p.checkEVSE(evse); err != nil {
		return err
	}
	if !p.included(evse) {
		return nil
	}
	u := model.EVSEStatusUpdate{EVSE: evse, Old: oldStatus, New: newStatus}
	p.mutate(func(q *queueStore) { q.appendStatus(u) })
	enqueuedTotal.WithLabelValues(p.id, ContainerFastStatus).Inc()
	p.statusTimer.Arm()
	return nil
}

// EnqueueChargeDetailRecord records a completed session.
func (p *Provider) EnqueueChargeDetailRecord(cdr model.ChargeDetailRecord) error {
	if p.isClosed() {
		return ErrClosed
	}
	if err := cdr.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCDR, err)
	}
	p.mutate(func(q *queueStore) { q.appendCDR(cdr, false) })
	enqueuedTotal.WithLabelValues(p.id, ContainerCDR).Inc()
	p.serviceTimer.Arm()
	return nil
}

// EnqueueChargingStationDataUpdate records a data update for every EVSE of a
// station.
func (p *Provider) EnqueueChargingStationDataUpdate(st *model.ChargingStation, property string, oldValue, newValue any) error {
	return p.eachEVSE(stationEVSEs(st), func(e *model.EVSE) error {
		return p.EnqueueEVSEDataUpdate(e, property, oldValue, newValue)
	})
}

// EnqueueChargingPoolDataUpdate records a data update for every EVSE of a pool.
func (p *Provider) EnqueueChargingPoolDataUpdate(pool *model.ChargingPool, property string, oldValue, newValue any) error {
	return p.eachEVSE(pool.AllEVSEs(), func(e *model.EVSE) error {
		return p.EnqueueEVSEDataUpdate(e, property, oldValue, newValue)
	})
}

// EnqueueStationAddition records every EVSE of a station.
func (p *Provider) EnqueueStationAddition(st *model.ChargingStation) error {
	return p.eachEVSE(stationEVSEs(st), p.EnqueueEVSEAddition)
}

// EnqueueStationRemoval records the removal of every EVSE of a station.
func (p *Provider) EnqueueStationRemoval(st *model.ChargingStation) error {
	return p.eachEVSE(stationEVSEs(st), p.EnqueueEVSERemoval)
}

// EnqueuePoolAddition records every EVSE of a pool.
func (p *Provider) EnqueuePoolAddition(pool *model.ChargingPool) error {
	return p.eachEVSE(pool.AllEVSEs(), p.EnqueueEVSEAddition)
}

// EnqueuePoolRemoval records the removal of every EVSE of a pool.
func (p *Provider) EnqueuePoolRemoval(pool *model.ChargingPool) error {
	return p.eachEVSE(pool.AllEVSEs(), p.EnqueueEVSERemoval)
}

func stationEVSEs(st *model.ChargingStation) []*model.EVSE {
	if st == nil {
		return nil
	}
	return st.EVSEs
}

func (p *Provider) eachEVSE(evses []*model.EVSE, fn func(*model.EVSE) error) error {
	var errs []error
	for _, e := range evses {
		if err := fn(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns the current container sizes and run counters.
func (p *Provider) Stats() QueueStats {
	p.lock.Lock()
	s := p.q.stats()
	p.lock.Unlock()
	s.Provider = p.id
	return s
}

// Pending returns the identities waiting in each container.
func (p *Provider) Pending() Pending {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.q.pending()
}

// NextFlush returns the pending deadlines of both schedulers. A zero time means
// the scheduler is disarmed.
func (p *Provider) NextFlush() (service, status time.Time) {
	return p.serviceTimer.Deadline(), p.statusTimer.Deadline()
}

func (p *Provider) beginFlush() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.closed {
		return false
	}
	p.flushes.Add(1)
	return true
}

func (p *Provider) onServiceTimer() {
	if !p.beginFlush() {
		return
	}
	defer p.flushes.Done()
	p.FlushService(p.ctx)
}

func (p *Provider) onStatusTimer() {
	if !p.beginFlush() {
		return
	}
	defer p.flushes.Done()
	p.FlushStatus(p.ctx)
}

// Close stops both schedulers and waits for running scheduled flushes. Charge
// detail records still queued are written to the spool. Enqueue operations fail
// with ErrClosed afterwards.
func (p *Provider) Close(ctx context.Context) error {
	p.stateMu.Lock()
	if p.closed {
		p.stateMu.Unlock()
		return nil
	}
	p.closed = true
	p.stateMu.Unlock()

	p.serviceTimer.Stop()
	p.statusTimer.Stop()

	done := make(chan struct{})
	go func() {
		p.flushes.Wait()
		close(done)
	}()
	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for running flushes: %w", ctx.Err()))
	}
	p.cancel()

	// Records are spooled even when ctx has expired waiting for the flushes.
	// Aborted flushes spool the records they held themselves.
	sctx, cancel := p.pushContext(context.WithoutCancel(ctx))
	defer cancel()
	select {
	case <-done:
	case <-sctx.Done():
	}

	if p.spool != nil {
		p.lock.Lock()
		var unsaved []model.ChargeDetailRecord
		for _, c := range p.q.cdrs {
			if !c.spooled {
				unsaved = append(unsaved, c.cdr)
			}
		}
		p.lock.Unlock()
		for _, c := range unsaved {
			if err := p.spool.Save(sctx, p.id, c); err != nil {
				errs = append(errs, fmt.Errorf("spool cdr %s: %w", c.SessionID, err))
			}
		}
		if len(unsaved) > 0 {
			p.log.Infof("provider %s: spooled %d charge detail records on close", p.id, len(unsaved))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) publish(e Event) {
	if p.bus != nil {
		p.bus.Publish(e)
	}
}

// reportException logs the root cause of a bookkeeping failure and forwards it.
func (p *Provider) reportException(kind FlushKind, err error) error {
	cause := innermost(err)
	p.log.Errorf("provider %s: %s flush failed: %v", p.id, kind, cause)
	p.monitor.CaptureException(cause, map[string]string{"provider": p.id, "flush": string(kind)})
	p.publish(ExceptionEvent{Provider: p.id, Kind: kind, Time: time.Now(), Err: cause})
	return cause
}

// finish completes a report, records metrics and publishes it.
func (p *Provider) finish(r *FlushReport) FlushReport {
	r.Duration = time.Since(r.Started)
	flushTotal.WithLabelValues(p.id, string(r.Kind), r.Result()).Inc()
	if p.lock.TryLock() {
		stats := p.q.stats()
		p.lock.Unlock()
		observeDepth(p.id, stats)
	}
	p.publish(FlushEvent{Report: *r})
	return *r
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Warnw(string, map[string]any)  {}
func (nopLogger) Errorf(string, ...any)         {}
