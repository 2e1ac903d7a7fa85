package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/roamsync/core/factory"
	"github.com/kilianp07/roamsync/core/model"
	"github.com/kilianp07/roamsync/core/roaming"
)

// Message kinds, used for QoS lookup.
const (
	KindData    = "data"
	KindStatus  = "status"
	KindCDR     = "cdr"
	KindIngress = "ingress"
)

func init() {
	_ = roaming.RegisterPusher("mqtt", func(conf map[string]any) (roaming.Pusher, error) {
		var c PusherConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		conn, err := Connect(c.MQTT)
		if err != nil {
			return nil, err
		}
		return NewPusher(conn, c.Provider), nil
	})
}

// PusherConfig configures a pusher with a dedicated broker connection.
type PusherConfig struct {
	MQTT     Config `json:"mqtt"`
	Provider string `json:"provider"`
}

type publisher interface {
	Publish(ctx context.Context, kind, topic string, payload []byte) error
	Topic(parts ...string) string
}

// Pusher publishes batches to <prefix>/<provider>/evses/data,
// <prefix>/<provider>/evses/status and <prefix>/<provider>/cdrs. A batch is
// accepted once the broker acknowledged the publish.
type Pusher struct {
	conn     publisher
	provider string
}

// NewPusher returns a Pusher publishing on conn for provider.
func NewPusher(conn *Conn, provider string) *Pusher {
	return &Pusher{conn: conn, provider: provider}
}

type batch struct {
	BatchID  string             `json:"batch_id"`
	Provider string             `json:"provider"`
	Mode     roaming.PushMode   `json:"mode"`
	SentAt   time.Time          `json:"sent_at"`
	EVSEs    []*model.EVSE      `json:"evses,omitempty"`
	Statuses []model.EVSEStatus `json:"statuses,omitempty"`
}

func (p *Pusher) send(ctx context.Context, kind, topic string, b batch) (roaming.PushResult, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return roaming.PushResult{BatchID: b.BatchID}, fmt.Errorf("encode batch: %w", err)
	}
	if err := p.conn.Publish(ctx, kind, topic, payload); err != nil {
		return roaming.PushResult{BatchID: b.BatchID}, err
	}
	return roaming.PushResult{BatchID: b.BatchID, Accepted: true}, nil
}

func (p *Pusher) PushEVSEData(ctx context.Context, evses []*model.EVSE, mode roaming.PushMode) (roaming.PushResult, error) {
	b := batch{BatchID: uuid.NewString(), Provider: p.provider, Mode: mode, SentAt: time.Now().UTC(), EVSEs: evses}
	return p.send(ctx, KindData, p.conn.Topic(p.provider, "evses", "data"), b)
}

func (p *Pusher) PushEVSEStatus(ctx context.Context, statuses []model.EVSEStatus, mode roaming.PushMode) (roaming.PushResult, error) {
	b := batch{BatchID: uuid.NewString(), Provider: p.provider, Mode: mode, SentAt: time.Now().UTC(), Statuses: statuses}
	return p.send(ctx, KindStatus, p.conn.Topic(p.provider, "evses", "status"), b)
}

// SendChargeDetailRecord publishes the record. The broker cannot decline a
// record, so the outcome is either forwarded or error.
func (p *Pusher) SendChargeDetailRecord(ctx context.Context, cdr model.ChargeDetailRecord) (roaming.CDRResult, error) {
	res := roaming.CDRResult{SessionID: cdr.SessionID, Status: roaming.CDRError}
	payload, err := json.Marshal(cdr)
	if err != nil {
		return res, fmt.Errorf("encode cdr: %w", err)
	}
	if err := p.conn.Publish(ctx, KindCDR, p.conn.Topic(p.provider, "cdrs"), payload); err != nil {
		return res, err
	}
	res.Status = roaming.CDRForwarded
	return res, nil
}
