package roaming

import (
	"context"

	"github.com/google/uuid"

	"github.com/kilianp07/roamsync/core/logger"
	"github.com/kilianp07/roamsync/core/model"
)

// LogPusher accepts every batch and writes it to a logger. It is used for dry
// runs and as the pusher of providers without a partner connection.
type LogPusher struct {
	log logger.Logger
}

// NewLogPusher returns a LogPusher writing to l.
func NewLogPusher(l logger.Logger) *LogPusher {
	if l == nil {
		l = nopLogger{}
	}
	return &LogPusher{log: l}
}

func (p *LogPusher) PushEVSEData(_ context.Context, evses []*model.EVSE, mode PushMode) (PushResult, error) {
	id := uuid.NewString()
	ids := make([]model.EVSEID, len(evses))
	for i, e := range evses {
		ids[i] = e.ID
	}
	p.log.Debugw("push evse data", map[string]any{"batch": id, "mode": mode.String(), "evses": ids})
	return PushResult{BatchID: id, Accepted: true}, nil
}

func (p *LogPusher) PushEVSEStatus(_ context.Context, statuses []model.EVSEStatus, mode PushMode) (PushResult, error) {
	id := uuid.NewString()
	fields := make(map[string]any, len(statuses)+2)
	fields["batch"] = id
	fields["mode"] = mode.String()
	for _, s := range statuses {
		fields[string(s.EVSEID)] = s.Status.Status.String()
	}
	p.log.Debugw("push evse status", fields)
	return PushResult{BatchID: id, Accepted: true}, nil
}

func (p *LogPusher) SendChargeDetailRecord(_ context.Context, cdr model.ChargeDetailRecord) (CDRResult, error) {
	p.log.Debugw("send charge detail record", map[string]any{
		"session": cdr.SessionID,
		"evse":    string(cdr.EVSEID),
		"kwh":     cdr.EnergyKWh,
	})
	return CDRResult{SessionID: cdr.SessionID, Status: CDRForwarded}, nil
}
