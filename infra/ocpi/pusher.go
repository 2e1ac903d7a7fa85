// Package ocpi pushes EVSE data, statuses and charge detail records to a
// roaming partner over JSON/HTTP.
package ocpi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/kilianp07/roamsync/auth"
	"github.com/kilianp07/roamsync/core/factory"
	"github.com/kilianp07/roamsync/core/logger"
	"github.com/kilianp07/roamsync/core/model"
	"github.com/kilianp07/roamsync/core/roaming"
	infralogger "github.com/kilianp07/roamsync/infra/logger"
)

// ErrUnexpectedStatus is returned for non-retryable HTTP answers.
var ErrUnexpectedStatus = errors.New("unexpected http status")

func init() {
	_ = roaming.RegisterPusher("http", func(conf map[string]any) (roaming.Pusher, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPusher(c, infralogger.New("ocpi-pusher"))
	})
}

// Pusher implements roaming.Pusher against an OCPI-flavoured partner API.
type Pusher struct {
	cfg    Config
	client *http.Client
	auth   auth.Authorizer
	log    logger.Logger
}

// NewPusher validates cfg and returns a Pusher.
func NewPusher(cfg Config, log logger.Logger) (*Pusher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = infralogger.NopLogger{}
	}
	return &Pusher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		auth:   auth.New(cfg.Auth),
		log:    log,
	}, nil
}

func dataMethod(mode roaming.PushMode) string {
	switch mode {
	case roaming.ModeFullLoad:
		return http.MethodPut
	case roaming.ModeInsert:
		return http.MethodPost
	default:
		return http.MethodPatch
	}
}

// PushEVSEData sends the batch to /evses.
func (p *Pusher) PushEVSEData(ctx context.Context, evses []*model.EVSE, mode roaming.PushMode) (roaming.PushResult, error) {
	body := evseBatch{BatchID: uuid.NewString(), Mode: mode, EVSEs: evses}
	return p.pushBatch(ctx, dataMethod(mode), "/evses", body.BatchID, body)
}

// PushEVSEStatus sends the batch to /evses/statuses.
func (p *Pusher) PushEVSEStatus(ctx context.Context, statuses []model.EVSEStatus, mode roaming.PushMode) (roaming.PushResult, error) {
	body := statusBatch{BatchID: uuid.NewString(), Mode: mode, Statuses: statuses}
	method := http.MethodPatch
	if mode == roaming.ModeFullLoad {
		method = http.MethodPut
	}
	return p.pushBatch(ctx, method, "/evses/statuses", body.BatchID, body)
}

func (p *Pusher) pushBatch(ctx context.Context, method, path, batchID string, body any) (roaming.PushResult, error) {
	env, err := p.do(ctx, method, path, body)
	if err != nil {
		return roaming.PushResult{BatchID: batchID}, err
	}
	res := roaming.PushResult{
		BatchID:  batchID,
		Accepted: env.StatusCode == StatusSuccess,
		Message:  env.StatusMessage,
	}
	if len(env.Data) > 0 {
		var ack batchAck
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			return res, fmt.Errorf("decode %s ack: %w", path, err)
		}
		if ack.BatchID != "" {
			res.BatchID = ack.BatchID
		}
		res.Rejected = ack.Rejected
	}
	return res, nil
}

// SendChargeDetailRecord posts the record to /cdrs. A client error status in
// the envelope means the partner declined the record.
func (p *Pusher) SendChargeDetailRecord(ctx context.Context, cdr model.ChargeDetailRecord) (roaming.CDRResult, error) {
	res := roaming.CDRResult{SessionID: cdr.SessionID}
	env, err := p.do(ctx, http.MethodPost, "/cdrs", cdr)
	if err != nil {
		res.Status = roaming.CDRError
		return res, err
	}
	res.Message = env.StatusMessage
	switch {
	case env.StatusCode == StatusSuccess:
		res.Status = roaming.CDRForwarded
	case env.StatusCode >= StatusClientError && env.StatusCode < StatusServerError:
		res.Status = roaming.CDRNotForwarded
	default:
		res.Status = roaming.CDRError
	}
	return res, nil
}

// do sends the request with exponential backoff on transport errors and 5xx
// answers and decodes the response envelope.
func (p *Pusher) do(ctx context.Context, method, path string, body any) (envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return envelope{}, fmt.Errorf("encode %s: %w", path, err)
	}
	requestID := uuid.NewString()
	url := p.cfg.BaseURL + path

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.cfg.InitialInterval
	eb.MaxInterval = p.cfg.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.cfg.MaxRetries), ctx)

	var env envelope
	op := func() error {
		env = envelope{}
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		for k, v := range p.cfg.Headers {
			req.Header.Set(k, v)
		}
		if p.auth != nil {
			if err := p.auth.SetAuthHeader(req); err != nil {
				return fmt.Errorf("failed to set auth header: %w", err)
			}
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %d, body: %s", ErrUnexpectedStatus, resp.StatusCode, data)
		}
		// 4xx answers may still carry an envelope with a client error code.
		if err := json.Unmarshal(data, &env); err != nil || env.StatusCode == 0 {
			if resp.StatusCode >= 300 {
				return backoff.Permanent(fmt.Errorf("%w: %d, body: %s", ErrUnexpectedStatus, resp.StatusCode, data))
			}
			return backoff.Permanent(fmt.Errorf("decode envelope: invalid body %q", data))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.log.Warnf("%s %s failed (request %s), retry in %s: %v", method, path, requestID, wait, err)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return envelope{}, err
	}
	return env, nil
}
