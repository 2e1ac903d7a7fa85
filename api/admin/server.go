// Package admin exposes provider queues and manual flushes over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/roamsync/core/roaming"
	"github.com/kilianp07/roamsync/infra/flushlog"
)

// Provider is the part of *roaming.Provider the API drives.
type Provider interface {
	ID() string
	Stats() roaming.QueueStats
	Pending() roaming.Pending
	NextFlush() (service, status time.Time)
	FlushService(ctx context.Context) roaming.FlushReport
	FlushStatus(ctx context.Context) roaming.FlushReport
}

type Server struct {
	providers map[string]Provider
	flushes   flushlog.Store
	token     string
	metrics   http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithFlushLog serves GET /flushes from store.
func WithFlushLog(store flushlog.Store) Option {
	return func(s *Server) { s.flushes = store }
}

// WithToken requires "Authorization: Bearer <token>" on every route but
// /healthz.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func NewServer(providers []Provider, opts ...Option) *Server {
	s := &Server{providers: make(map[string]Provider, len(providers)), metrics: promhttp.Handler()}
	for _, p := range providers {
		s.providers[p.ID()] = p
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RequireBearer(s.token, next) })
		r.Handle("/metrics", s.metrics)
		r.Get("/providers", s.ListProviders)
		r.Route("/providers/{providerId}", func(r chi.Router) {
			r.Get("/queues", s.GetQueues)
			r.Get("/pending", s.GetPending)
			r.Post("/flush/service", s.FlushService)
			r.Post("/flush/status", s.FlushStatus)
		})
		if s.flushes != nil {
			r.Get("/flushes", s.ListFlushes)
		}
	})
	return r
}

// RequireBearer rejects requests without the expected bearer token. An empty
// token disables the check.
func RequireBearer(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type providerInfo struct {
	ID          string             `json:"id"`
	Queues      roaming.QueueStats `json:"queues"`
	NextService *time.Time         `json:"next_service,omitempty"`
	NextStatus  *time.Time         `json:"next_status,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) ListProviders(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]providerInfo, 0, len(ids))
	for _, id := range ids {
		p := s.providers[id]
		svc, st := p.NextFlush()
		out = append(out, providerInfo{ID: id, Queues: p.Stats(), NextService: timePtr(svc), NextStatus: timePtr(st)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) provider(w http.ResponseWriter, r *http.Request) (Provider, bool) {
	p, ok := s.providers[chi.URLParam(r, "providerId")]
	if !ok {
		http.NotFound(w, r)
	}
	return p, ok
}

func (s *Server) GetQueues(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.provider(w, r); ok {
		writeJSON(w, http.StatusOK, p.Stats())
	}
}

func (s *Server) GetPending(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.provider(w, r); ok {
		writeJSON(w, http.StatusOK, p.Pending())
	}
}

func (s *Server) FlushService(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.provider(w, r); ok {
		writeReport(w, p.FlushService(r.Context()))
	}
}

func (s *Server) FlushStatus(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.provider(w, r); ok {
		writeReport(w, p.FlushStatus(r.Context()))
	}
}

// writeReport answers 409 for a flush skipped on lock contention.
func writeReport(w http.ResponseWriter, rep roaming.FlushReport) {
	code := http.StatusOK
	switch {
	case rep.Skipped:
		code = http.StatusConflict
	case rep.Error != "":
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, rep)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
