package model

import (
	"fmt"
	"strings"
	"time"
)

// EVSEStatusType is the operational state of an EVSE as reported upstream.
type EVSEStatusType int

const (
	StatusUnknown EVSEStatusType = iota
	StatusAvailable
	StatusReserved
	StatusCharging
	StatusBlocked
	StatusOutOfService
	StatusOffline
)

// String returns the upstream name of the status.
func (s EVSEStatusType) String() string {
	switch s {
	case StatusAvailable:
		return "AVAILABLE"
	case StatusReserved:
		return "RESERVED"
	case StatusCharging:
		return "CHARGING"
	case StatusBlocked:
		return "BLOCKED"
	case StatusOutOfService:
		return "OUTOFORDER"
	case StatusOffline:
		return "INOPERATIVE"
	default:
		return "UNKNOWN"
	}
}

// ParseEVSEStatus converts an upstream status name. Matching is case-insensitive.
func ParseEVSEStatus(s string) (EVSEStatusType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AVAILABLE":
		return StatusAvailable, nil
	case "RESERVED":
		return StatusReserved, nil
	case "CHARGING":
		return StatusCharging, nil
	case "BLOCKED":
		return StatusBlocked, nil
	case "OUTOFORDER", "OUT_OF_SERVICE":
		return StatusOutOfService, nil
	case "INOPERATIVE", "OFFLINE":
		return StatusOffline, nil
	case "UNKNOWN", "":
		return StatusUnknown, nil
	default:
		return StatusUnknown, fmt.Errorf("unknown evse status %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s EVSEStatusType) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *EVSEStatusType) UnmarshalText(b []byte) error {
	v, err := ParseEVSEStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// TimestampedStatus is a status value together with the time it was observed.
type TimestampedStatus struct {
	Status    EVSEStatusType `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

// EVSEStatus is the status of one EVSE as pushed to a partner.
type EVSEStatus struct {
	EVSEID EVSEID            `json:"evse_id"`
	Status TimestampedStatus `json:"status"`
}

// EVSEStatusUpdate records a status transition of an EVSE. It is immutable once
// created; the EVSE reference is used to look up the current status at push time.
type EVSEStatusUpdate struct {
	EVSE *EVSE
	Old  TimestampedStatus
	New  TimestampedStatus
}

// EVSEID returns the identity of the EVSE the update belongs to.
func (u EVSEStatusUpdate) EVSEID() EVSEID {
	if u.EVSE == nil {
		return ""
	}
	return u.EVSE.ID
}
