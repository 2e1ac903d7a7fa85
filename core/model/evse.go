package model

import (
	"errors"
	"strings"
	"sync"
)

// EVSEID identifies an EVSE across the roaming network, e.g. "DE*ABC*E1234*1".
type EVSEID string

// OperatorID returns the country and operator prefix of the id ("DE*ABC"), or an
// empty string when the id does not carry one.
func (id EVSEID) OperatorID() string {
	parts := strings.SplitN(string(id), "*", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "*" + parts[1]
}

// EVSE is an individually addressable charging point. Data attributes are not
// modified once the EVSE is shared; a data change produces a new version with
// Clone. The status lives in a cell shared by all versions of the EVSE, so it
// can be read by a flush while the entity model keeps updating it. EVSEs must be
// created with NewEVSE.
type EVSE struct {
	ID         EVSEID            `json:"evse_id"`
	StationID  string            `json:"station_id,omitempty"`
	PoolID     string            `json:"pool_id,omitempty"`
	OperatorID string            `json:"operator_id,omitempty"`
	Connectors []Connector       `json:"connectors,omitempty"`
	MaxPowerKW float64           `json:"max_power_kw,omitempty"`
	Address    string            `json:"address,omitempty"`
	Latitude   float64           `json:"latitude,omitempty"`
	Longitude  float64           `json:"longitude,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`

	st *statusCell
}

type statusCell struct {
	mu     sync.RWMutex
	status TimestampedStatus
}

// Connector describes a plug of an EVSE.
type Connector struct {
	ID       string  `json:"id"`
	Standard string  `json:"standard"`
	Format   string  `json:"format,omitempty"`
	PowerKW  float64 `json:"power_kw,omitempty"`
}

// ErrEmptyEVSEID is returned when an EVSE has no identity.
var ErrEmptyEVSEID = errors.New("evse id is empty")

// NewEVSE returns an EVSE with the given identity and an unknown status.
func NewEVSE(id EVSEID) *EVSE {
	return &EVSE{ID: id, st: &statusCell{}}
}

// Clone returns a new version of the EVSE to carry changed data attributes. The
// slices and maps are copied; the status is shared with e.
func (e *EVSE) Clone() *EVSE {
	c := *e
	c.Connectors = append([]Connector(nil), e.Connectors...)
	if e.Attributes != nil {
		c.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// Validate checks the identity of the EVSE.
func (e *EVSE) Validate() error {
	if e == nil {
		return errors.New("evse is nil")
	}
	if strings.TrimSpace(string(e.ID)) == "" {
		return ErrEmptyEVSEID
	}
	return nil
}

// Status returns the current status.
func (e *EVSE) Status() TimestampedStatus {
	e.st.mu.RLock()
	defer e.st.mu.RUnlock()
	return e.st.status
}

// SetStatus replaces the current status and returns the previous one.
func (e *EVSE) SetStatus(s TimestampedStatus) TimestampedStatus {
	e.st.mu.Lock()
	old := e.st.status
	e.st.status = s
	e.st.mu.Unlock()
	return old
}

// CurrentStatus returns the status of the EVSE in its pushable form.
func (e *EVSE) CurrentStatus() EVSEStatus {
	return EVSEStatus{EVSEID: e.ID, Status: e.Status()}
}

// Operator returns the explicit operator id or the one encoded in the EVSE id.
func (e *EVSE) Operator() string {
	if e.OperatorID != "" {
		return e.OperatorID
	}
	return e.ID.OperatorID()
}
