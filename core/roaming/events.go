package roaming

import (
	"time"

	"github.com/kilianp07/roamsync/core/model"
)

// FlushKind distinguishes the two flush operations.
type FlushKind string

const (
	FlushKindService FlushKind = "service"
	FlushKindStatus  FlushKind = "status"
)

// Operation names a push performed by a flush.
type Operation string

const (
	OpEVSEAdd    Operation = "evse_add"
	OpEVSEUpdate Operation = "evse_update"
	OpEVSEStatus Operation = "evse_status"
)

// PushOutcome describes one data or status push.
type PushOutcome struct {
	Operation Operation      `json:"operation"`
	Mode      PushMode       `json:"mode"`
	Count     int            `json:"count"`
	BatchID   string         `json:"batch_id,omitempty"`
	Accepted  bool           `json:"accepted"`
	Rejected  []model.EVSEID `json:"rejected,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Requeued  int            `json:"requeued,omitempty"`
	Dropped   int            `json:"dropped,omitempty"`
}

// CDROutcome describes the push of one charge detail record.
type CDROutcome struct {
	SessionID string    `json:"session_id"`
	Status    CDRStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	Requeued  bool      `json:"requeued,omitempty"`
}

// FlushReport summarizes a flush invocation.
type FlushReport struct {
	Provider string        `json:"provider"`
	Kind     FlushKind     `json:"kind"`
	Run      uint64        `json:"run,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	// Skipped is set when the lock could not be acquired.
	Skipped bool `json:"skipped,omitempty"`
	// Empty is set when there was nothing to push.
	Empty bool `json:"empty,omitempty"`
	// Error holds the root cause of a bookkeeping failure.
	Error            string         `json:"error,omitempty"`
	Promoted         int            `json:"promoted,omitempty"`
	Pushes           []PushOutcome  `json:"pushes,omitempty"`
	CDRs             []CDROutcome   `json:"cdrs,omitempty"`
	UnpushedRemovals []model.EVSEID `json:"unpushed_removals,omitempty"`
}

// Executed reports whether the flush took a snapshot.
func (r FlushReport) Executed() bool {
	return !r.Skipped && !r.Empty && r.Error == ""
}

// Failed reports whether a push or the bookkeeping failed.
func (r FlushReport) Failed() bool {
	if r.Error != "" {
		return true
	}
	for _, p := range r.Pushes {
		if p.Error != "" || !p.Accepted || len(p.Rejected) > 0 {
			return true
		}
	}
	for _, c := range r.CDRs {
		if c.Status != CDRForwarded {
			return true
		}
	}
	return false
}

// Result returns the label used for the flush in metrics.
func (r FlushReport) Result() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Error != "":
		return "error"
	case r.Empty:
		return "empty"
	case r.Failed():
		return "partial"
	default:
		return "ok"
	}
}

// Event is published on the provider event bus.
type Event interface {
	ProviderID() string
}

// FlushEvent is published after every flush invocation.
type FlushEvent struct {
	Report FlushReport
}

func (e FlushEvent) ProviderID() string { return e.Report.Provider }

// ExceptionEvent carries the root cause of a bookkeeping failure.
type ExceptionEvent struct {
	Provider string
	Kind     FlushKind
	Time     time.Time
	Err      error
}

func (e ExceptionEvent) ProviderID() string { return e.Provider }

// DroppedEvent is published when entries exceeded the push attempt limit.
type DroppedEvent struct {
	Provider  string
	Container string
	EVSEIDs   []model.EVSEID
	Attempts  int
	Time      time.Time
}

func (e DroppedEvent) ProviderID() string { return e.Provider }
