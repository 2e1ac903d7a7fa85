package roaming

import (
	"context"
	"fmt"
	"strings"

	"github.com/kilianp07/roamsync/core/model"
)

// PushMode tells the partner how to apply a batch.
type PushMode int

const (
	// ModeFullLoad replaces the partner's complete data set.
	ModeFullLoad PushMode = iota + 1
	// ModeInsert adds new entries.
	ModeInsert
	// ModeUpdate changes existing entries.
	ModeUpdate
)

func (m PushMode) String() string {
	switch m {
	case ModeFullLoad:
		return "fullLoad"
	case ModeInsert:
		return "insert"
	case ModeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m PushMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *PushMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "fullload":
		*m = ModeFullLoad
	case "insert":
		*m = ModeInsert
	case "update":
		*m = ModeUpdate
	default:
		return fmt.Errorf("unknown push mode %q", string(b))
	}
	return nil
}

// PushResult is the acknowledgement of a data or status batch.
type PushResult struct {
	BatchID  string         `json:"batch_id,omitempty"`
	Accepted bool           `json:"accepted"`
	Message  string         `json:"message,omitempty"`
	Rejected []model.EVSEID `json:"rejected,omitempty"`
}

// CDRStatus is the outcome of a single charge detail record push.
type CDRStatus int

const (
	CDRForwarded CDRStatus = iota + 1
	// CDRNotForwarded means the partner declined the record. It is not retried.
	CDRNotForwarded
	CDRError
)

func (s CDRStatus) String() string {
	switch s {
	case CDRForwarded:
		return "forwarded"
	case CDRNotForwarded:
		return "not_forwarded"
	case CDRError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s CDRStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CDRStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "forwarded":
		*s = CDRForwarded
	case "not_forwarded":
		*s = CDRNotForwarded
	case "error":
		*s = CDRError
	default:
		return fmt.Errorf("unknown cdr status %q", string(b))
	}
	return nil
}

// CDRResult is the acknowledgement of one charge detail record.
type CDRResult struct {
	SessionID string    `json:"session_id"`
	Status    CDRStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// Pusher is implemented by protocol adapters delivering data to a roaming
// partner. Each call is expected to be idempotent.
type Pusher interface {
	// PushEVSEData sends EVSE data. mode is ModeFullLoad, ModeInsert or ModeUpdate.
	PushEVSEData(ctx context.Context, evses []*model.EVSE, mode PushMode) (PushResult, error)
	// PushEVSEStatus sends EVSE statuses. mode is ModeFullLoad or ModeUpdate.
	PushEVSEStatus(ctx context.Context, statuses []model.EVSEStatus, mode PushMode) (PushResult, error)
	// SendChargeDetailRecord forwards one completed session.
	SendChargeDetailRecord(ctx context.Context, cdr model.ChargeDetailRecord) (CDRResult, error)
}

// EVSERemover is the removal push of a partner. The engine collects removals but
// does not call this yet: whether a removal deletes or deactivates the EVSE at
// the partner is undecided.
type EVSERemover interface {
	RemoveEVSEs(ctx context.Context, evses []*model.EVSE) (PushResult, error)
}
