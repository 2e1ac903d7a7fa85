// Package app wires configuration, providers and the surrounding services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/roamsync/api/admin"
	"github.com/kilianp07/roamsync/config"
	coremetrics "github.com/kilianp07/roamsync/core/metrics"
	"github.com/kilianp07/roamsync/core/model"
	coremon "github.com/kilianp07/roamsync/core/monitoring"
	"github.com/kilianp07/roamsync/core/roaming"
	"github.com/kilianp07/roamsync/infra/cdrspool"
	"github.com/kilianp07/roamsync/infra/flushlog"
	"github.com/kilianp07/roamsync/infra/logger"
	"github.com/kilianp07/roamsync/infra/metrics"
	"github.com/kilianp07/roamsync/infra/monitoring"
	"github.com/kilianp07/roamsync/infra/mqtt"
	"github.com/kilianp07/roamsync/internal/eventbus"
)

const closeTimeout = 30 * time.Second

// Service owns the providers of a configuration and the components feeding and
// observing them.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	monitor   coremon.Monitor
	bus       *eventbus.TypedBus[roaming.Event]
	sink      coremetrics.MetricsSink
	spool     roaming.CDRSpool
	flushes   flushlog.Store
	conn      *mqtt.Conn
	ingress   *mqtt.Ingress
	providers []*roaming.Provider
	api       *admin.Server
}

// New creates a Service from the configuration. Nothing is started before Run
// except the provider schedulers.
func New(cfg *config.Config) (*Service, error) {
	s := &Service{cfg: cfg, log: logger.New("service"), bus: eventbus.NewTyped[roaming.Event]()}
	if err := s.build(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build() error {
	mon, err := monitoring.NewSentryMonitor(s.cfg.Sentry)
	if err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)
	s.monitor = mon

	if s.sink, err = coremetrics.NewMetricsSink(s.cfg.Metrics.Sinks); err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	if s.cfg.FlushLog.Enabled {
		if s.flushes, err = newFlushStore(s.cfg.FlushLog); err != nil {
			return fmt.Errorf("flush log: %w", err)
		}
	}
	if s.spool, err = cdrspool.New(s.cfg.Spool); err != nil {
		return fmt.Errorf("cdr spool: %w", err)
	}
	if s.needsConn() {
		if s.conn, err = mqtt.Connect(s.cfg.MQTT); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	targets := make([]mqtt.Target, 0, len(s.cfg.Providers))
	apiProviders := make([]admin.Provider, 0, len(s.cfg.Providers))
	for _, pc := range s.cfg.Providers {
		pusher, err := s.newPusher(pc)
		if err != nil {
			return fmt.Errorf("provider %s: pusher: %w", pc.ID, err)
		}
		p, err := roaming.NewProvider(pc.ID, pusher, pc.Roaming,
			roaming.WithLogger(logger.New("provider."+pc.ID)),
			roaming.WithEventBus(s.bus),
			roaming.WithCDRSpool(s.spool),
			roaming.WithMonitor(s.monitor),
		)
		if err != nil {
			return err
		}
		s.providers = append(s.providers, p)
		targets = append(targets, p)
		apiProviders = append(apiProviders, p)
	}

	if s.cfg.Ingress.Enabled {
		s.ingress = mqtt.NewIngress(s.conn, model.NewRegistry(), targets...)
	}
	if s.cfg.API.Addr != "" {
		opts := []admin.Option{admin.WithToken(s.cfg.API.Token)}
		if s.flushes != nil {
			opts = append(opts, admin.WithFlushLog(s.flushes))
		}
		s.api = admin.NewServer(apiProviders, opts...)
	}
	return nil
}

func (s *Service) needsConn() bool {
	return s.cfg.Ingress.Enabled || s.cfg.SharesMQTT()
}

func (s *Service) newPusher(pc config.ProviderConfig) (roaming.Pusher, error) {
	if pc.UsesSharedMQTT() {
		return mqtt.NewPusher(s.conn, pc.ID), nil
	}
	return roaming.NewPusher(pc.Pusher)
}

func newFlushStore(c config.FlushLogConfig) (flushlog.Store, error) {
	switch c.Backend {
	case "sqlite":
		return flushlog.NewSQLiteStore(c.Path)
	case "jsonl_plain":
		return flushlog.NewJSONLStore(c.Path)
	default:
		return flushlog.NewRotatingStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	}
}

// Providers returns the configured providers in configuration order.
func (s *Service) Providers() []*roaming.Provider { return s.providers }

// Handler returns the admin API routes, or nil when the API is disabled.
func (s *Service) Handler() http.Handler {
	if s.api == nil {
		return nil
	}
	return s.api.Routes()
}

// Run starts the collectors, the ingress and the HTTP servers and blocks until
// the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	defer s.monitor.Recover()
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	var recorded <-chan struct{}
	if s.flushes != nil {
		recorded = flushlog.Start(ctx, s.bus, s.flushes, logger.New("flushlog"))
	}
	if s.ingress != nil {
		if err := s.ingress.Start(); err != nil {
			return fmt.Errorf("ingress: %w", err)
		}
	}
	errCh := make(chan error, 2)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() { errCh <- metrics.StartPromServer(ctx, addr) }()
	}
	if s.api != nil {
		go func() { errCh <- s.serveAPI(ctx) }()
	}
	s.log.Infof("service started with %d providers", len(s.providers))

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			s.log.Errorf("server stopped: %v", err)
		}
	}
	if recorded != nil {
		<-recorded
	}
	return err
}

func (s *Service) serveAPI(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: s.api.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("admin api shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("serving admin api on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close drains the providers and releases every resource. Queued charge detail
// records are written to the spool. Providers are closed in parallel; pushes
// still running after closeTimeout are aborted.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	errs := make([]error, len(s.providers)+1)
	var wg sync.WaitGroup
	for i, p := range s.providers {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Close(ctx); err != nil {
				errs[i] = fmt.Errorf("provider %s: %w", p.ID(), err)
			}
		}()
	}
	wg.Wait()
	errs[len(s.providers)] = s.release()
	return errors.Join(errs...)
}

func (s *Service) release() error {
	var errs []error
	if s.conn != nil {
		s.conn.Disconnect()
	}
	if s.spool != nil {
		errs = append(errs, s.spool.Close())
	}
	if s.flushes != nil {
		errs = append(errs, s.flushes.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.bus.Close()
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}
