// Package monitoring backs core/monitoring with Sentry.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/roamsync/config"
	coremon "github.com/kilianp07/roamsync/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
	})
	if err != nil {
		return nil, err
	}
	return newSentryMonitor(sentry.CurrentHub(), cfg.Tags), nil
}

// newSentryMonitor sets the instance tags on the hub scope.
func newSentryMonitor(hub *sentry.Hub, tags map[string]string) *sentryMonitor {
	if len(tags) > 0 {
		hub.ConfigureScope(func(scope *sentry.Scope) { scope.SetTags(tags) })
	}
	return &sentryMonitor{hub: hub}
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) withTags(tags map[string]string, fn func(h *sentry.Hub)) {
	if len(tags) == 0 {
		fn(s.hub)
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		fn(s.hub)
	})
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.withTags(tags, func(h *sentry.Hub) { h.CaptureException(err) })
}

func (s *sentryMonitor) CaptureMessage(msg string, tags map[string]string) {
	s.withTags(tags, func(h *sentry.Hub) { h.CaptureMessage(msg) })
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
