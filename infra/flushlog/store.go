// Package flushlog keeps an audit trail of provider flushes.
package flushlog

import (
	"context"
	"time"

	"github.com/kilianp07/roamsync/core/roaming"
)

// Record captures one flush invocation and its outcome.
type Record struct {
	Timestamp time.Time           `json:"timestamp"`
	Result    string              `json:"result"`
	Report    roaming.FlushReport `json:"report"`
}

// NewRecord builds the audit record of a flush report.
func NewRecord(r roaming.FlushReport) Record {
	ts := r.Started
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{Timestamp: ts, Result: r.Result(), Report: r}
}

// Query defines filters for retrieving records.
type Query struct {
	Start    time.Time
	End      time.Time
	Provider string
	Kind     roaming.FlushKind
	// FailedOnly keeps flushes with a failed push or bookkeeping error.
	FailedOnly bool
}

func (q Query) match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Provider != "" && r.Report.Provider != q.Provider {
		return false
	}
	if q.Kind != "" && r.Report.Kind != q.Kind {
		return false
	}
	if q.FailedOnly && !r.Report.Failed() {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
