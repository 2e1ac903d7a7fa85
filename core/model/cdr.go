package model

import (
	"errors"
	"time"
)

// ChargeDetailRecord describes a completed charging session. It is appended once
// per session and never modified afterwards.
type ChargeDetailRecord struct {
	SessionID    string    `json:"session_id"`
	EVSEID       EVSEID    `json:"evse_id"`
	ProviderID   string    `json:"provider_id,omitempty"`
	AuthID       string    `json:"auth_id,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	EnergyKWh    float64   `json:"energy_kwh"`
	MeterStartWh int64     `json:"meter_start_wh,omitempty"`
	MeterStopWh  int64     `json:"meter_stop_wh,omitempty"`
	TotalCost    float64   `json:"total_cost,omitempty"`
	Currency     string    `json:"currency,omitempty"`
}

// ErrEmptySessionID is returned for records without a session identity.
var ErrEmptySessionID = errors.New("charge detail record has no session id")

// Validate checks the identity and time range of the record.
func (c ChargeDetailRecord) Validate() error {
	if c.SessionID == "" {
		return ErrEmptySessionID
	}
	if !c.End.IsZero() && c.End.Before(c.Start) {
		return errors.New("charge detail record ends before it starts")
	}
	return nil
}

// Duration returns the session length.
func (c ChargeDetailRecord) Duration() time.Duration {
	if c.End.IsZero() {
		return 0
	}
	return c.End.Sub(c.Start)
}
