package ocpi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kilianp07/roamsync/auth"
	"github.com/kilianp07/roamsync/core/factory"
	"github.com/kilianp07/roamsync/core/model"
	"github.com/kilianp07/roamsync/core/roaming"
)

type captured struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type partner struct {
	mu       sync.Mutex
	requests []captured
	handler  func(w http.ResponseWriter, r *http.Request, body []byte)
}

func (p *partner) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.requests = append(p.requests, captured{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	p.mu.Unlock()
	p.handler(w, r, body)
}

func (p *partner) last() captured {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func (p *partner) first() captured {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[0]
}

func (p *partner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func reply(w http.ResponseWriter, code int, msg string, data any) {
	env := map[string]any{"status_code": code, "status_message": msg, "timestamp": time.Now()}
	if data != nil {
		env["data"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}

func newPartner(t *testing.T, h func(w http.ResponseWriter, r *http.Request, body []byte)) (*partner, *Pusher) {
	t.Helper()
	p := &partner{handler: h}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	pusher, err := NewPusher(Config{
		BaseURL:         srv.URL + "/ocpi/",
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Auth:            auth.Conf{Token: "secret"},
	}, nil)
	if err != nil {
		t.Fatalf("new pusher: %v", err)
	}
	return p, pusher
}

func TestPushEVSEDataMethods(t *testing.T) {
	p, pusher := newPartner(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		reply(w, StatusSuccess, "ok", nil)
	})
	evses := []*model.EVSE{model.NewEVSE("DE*ABC*E1"), model.NewEVSE("DE*ABC*E2")}
	cases := map[roaming.PushMode]string{
		roaming.ModeFullLoad: http.MethodPut,
		roaming.ModeInsert:   http.MethodPost,
		roaming.ModeUpdate:   http.MethodPatch,
	}
	for mode, method := range cases {
		res, err := pusher.PushEVSEData(context.Background(), evses, mode)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if !res.Accepted || res.BatchID == "" {
			t.Fatalf("%s: unexpected result %+v", mode, res)
		}
		req := p.last()
		if req.Method != method || req.Path != "/ocpi/evses" {
			t.Errorf("%s: got %s %s", mode, req.Method, req.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("missing auth header, got %q", got)
		}
		if req.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		var sent struct {
			BatchID string       `json:"batch_id"`
			Mode    string       `json:"mode"`
			EVSEs   []model.EVSE `json:"evses"`
		}
		if err := json.Unmarshal(req.Body, &sent); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if sent.Mode != mode.String() || len(sent.EVSEs) != 2 || sent.BatchID != res.BatchID {
			t.Errorf("%s: unexpected body %s", mode, req.Body)
		}
	}
}

func TestPushEVSEStatusRejected(t *testing.T) {
	p, pusher := newPartner(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		reply(w, StatusSuccess, "partially accepted", map[string]any{
			"batch_id": "remote-1",
			"rejected": []string{"DE*ABC*E2"},
		})
	})
	e := model.NewEVSE("DE*ABC*E2")
	e.SetStatus(model.TimestampedStatus{Status: model.StatusCharging, Timestamp: time.Now()})
	res, err := pusher.PushEVSEStatus(context.Background(), []model.EVSEStatus{e.CurrentStatus()}, roaming.ModeUpdate)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !res.Accepted || res.BatchID != "remote-1" || len(res.Rejected) != 1 || res.Rejected[0] != "DE*ABC*E2" {
		t.Fatalf("unexpected result %+v", res)
	}
	req := p.last()
	if req.Method != http.MethodPatch || req.Path != "/ocpi/evses/statuses" {
		t.Errorf("got %s %s", req.Method, req.Path)
	}
	if _, err := pusher.PushEVSEStatus(context.Background(), nil, roaming.ModeFullLoad); err != nil {
		t.Fatalf("full load: %v", err)
	}
	if req := p.last(); req.Method != http.MethodPut {
		t.Errorf("full load expected PUT got %s", req.Method)
	}
}

func TestPushNegativeAcknowledgement(t *testing.T) {
	_, pusher := newPartner(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusBadRequest)
		reply(w, StatusInvalidParam, "invalid evse", nil)
	})
	res, err := pusher.PushEVSEData(context.Background(), []*model.EVSE{model.NewEVSE("X")}, roaming.ModeInsert)
	if err != nil {
		t.Fatalf("nack must not be an error: %v", err)
	}
	if res.Accepted || res.Message != "invalid evse" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	p, pusher := newPartner(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		reply(w, StatusSuccess, "", nil)
	})
	res, err := pusher.PushEVSEData(context.Background(), []*model.EVSE{model.NewEVSE("X")}, roaming.ModeUpdate)
	if err != nil || !res.Accepted {
		t.Fatalf("expected success after retries, got %+v %v", res, err)
	}
	if p.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.count())
	}
	first, last := p.first(), p.last()
	if first.Header.Get("X-Request-ID") != last.Header.Get("X-Request-ID") {
		t.Errorf("retries should keep the request id")
	}
}

func TestRetryGivesUp(t *testing.T) {
	p, pusher := newPartner(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := pusher.PushEVSEData(context.Background(), []*model.EVSE{model.NewEVSE("X")}, roaming.ModeUpdate)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
	if p.count() != 4 {
		t.Fatalf("expected 1 attempt + 3 retries, got %d", p.count())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	p, pusher := newPartner(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("denied"))
	})
	_, err := pusher.PushEVSEData(context.Background(), []*model.EVSE{model.NewEVSE("X")}, roaming.ModeUpdate)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
	if p.count() != 1 {
		t.Fatalf("expected a single attempt, got %d", p.count())
	}
}

func TestSendChargeDetailRecord(t *testing.T) {
	codes := map[string]int{"ok": StatusSuccess, "declined": StatusInvalidParam, "broken": StatusServerError}
	p, pusher := newPartner(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		var c model.ChargeDetailRecord
		_ = json.Unmarshal(body, &c)
		reply(w, codes[c.SessionID], c.SessionID, nil)
	})
	want := map[string]roaming.CDRStatus{
		"ok":       roaming.CDRForwarded,
		"declined": roaming.CDRNotForwarded,
		"broken":   roaming.CDRError,
	}
	for id, status := range want {
		res, err := pusher.SendChargeDetailRecord(context.Background(), model.ChargeDetailRecord{SessionID: id})
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if res.Status != status || res.SessionID != id {
			t.Errorf("%s: unexpected result %+v", id, res)
		}
	}
	if req := p.last(); req.Method != http.MethodPost || req.Path != "/ocpi/cdrs" {
		t.Errorf("got %s %s", req.Method, req.Path)
	}
}

func TestSendChargeDetailRecordTransportError(t *testing.T) {
	pusher, err := NewPusher(Config{BaseURL: "http://127.0.0.1:1", MaxRetries: 1, InitialInterval: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("new pusher: %v", err)
	}
	res, err := pusher.SendChargeDetailRecord(context.Background(), model.ChargeDetailRecord{SessionID: "s"})
	if err == nil || res.Status != roaming.CDRError {
		t.Fatalf("expected transport error, got %+v %v", res, err)
	}
}

func TestContextCancelStopsRetries(t *testing.T) {
	_, pusher := newPartner(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	pusher.cfg.InitialInterval = time.Second
	pusher.cfg.MaxInterval = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := pusher.PushEVSEData(ctx, nil, roaming.ModeUpdate); err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("retries did not stop on cancel")
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := NewPusher(Config{}, nil); err == nil {
		t.Fatalf("expected missing base_url error")
	}
	if _, err := NewPusher(Config{BaseURL: "ftp://x"}, nil); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestRegisteredAsHTTPPusher(t *testing.T) {
	p, err := roaming.NewPusher(factory.ModuleConfig{Type: "http", Conf: map[string]any{
		"base_url": "https://partner.example/ocpi",
		"timeout":  "3s",
		"auth":     map[string]any{"token": "t"},
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	hp, ok := p.(*Pusher)
	if !ok {
		t.Fatalf("unexpected type %T", p)
	}
	if hp.cfg.Timeout != 3*time.Second || hp.auth == nil {
		t.Fatalf("config not decoded: %+v", hp.cfg)
	}
}
