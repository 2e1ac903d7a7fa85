package ocpi

import (
	"encoding/json"
	"time"

	"github.com/kilianp07/roamsync/core/model"
	"github.com/kilianp07/roamsync/core/roaming"
)

// Response status codes.
const (
	StatusSuccess      = 1000
	StatusClientError  = 2000
	StatusInvalidParam = 2001
	StatusServerError  = 3000
)

// envelope is the response wrapper every partner endpoint returns.
type envelope struct {
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// batchAck is the data of a batch response.
type batchAck struct {
	BatchID  string         `json:"batch_id,omitempty"`
	Rejected []model.EVSEID `json:"rejected,omitempty"`
}

type evseBatch struct {
	BatchID string           `json:"batch_id"`
	Mode    roaming.PushMode `json:"mode"`
	EVSEs   []*model.EVSE    `json:"evses"`
}

type statusBatch struct {
	BatchID  string             `json:"batch_id"`
	Mode     roaming.PushMode   `json:"mode"`
	Statuses []model.EVSEStatus `json:"statuses"`
}
