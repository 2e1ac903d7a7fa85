package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/roamsync/core/logger"
	"github.com/kilianp07/roamsync/core/model"
	infralogger "github.com/kilianp07/roamsync/infra/logger"
)

// Target receives the mutations decoded by the ingress. *roaming.Provider
// implements it.
type Target interface {
	ID() string
	EnqueueEVSEAddition(evse *model.EVSE) error
	EnqueueEVSERemoval(evse *model.EVSE) error
	EnqueueEVSEDataUpdate(evse *model.EVSE, property string, oldValue, newValue any) error
	EnqueueEVSEStatusUpdate(evse *model.EVSE, oldStatus, newStatus model.TimestampedStatus) error
	EnqueueChargeDetailRecord(cdr model.ChargeDetailRecord) error
}

type subscriber interface {
	Subscribe(topic, kind string, handler paho.MessageHandler) error
	Topic(parts ...string) string
}

var ingressMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "roaming_ingress_messages_total",
	Help: "Messages consumed by the MQTT ingress",
}, []string{"event", "result"})

func init() {
	prometheus.MustRegister(ingressMessages)
}

// Ingress consumes EVSE events from the broker and fans them out to every
// target. Targets apply their own inclusion filter.
//
// Topics below the prefix:
//
//	evse/<id>/added    EVSE data
//	evse/<id>/removed  empty payload
//	evse/<id>/updated  {"property", "old_value", "new_value", "evse"}
//	evse/<id>/status   {"status", "timestamp"}
//	cdr                charge detail record
type Ingress struct {
	conn     subscriber
	registry *model.Registry
	targets  []Target
	log      logger.Logger
}

// NewIngress returns an Ingress keeping EVSE references in registry.
func NewIngress(conn *Conn, registry *model.Registry, targets ...Target) *Ingress {
	return newIngress(conn, registry, targets...)
}

func newIngress(conn subscriber, registry *model.Registry, targets ...Target) *Ingress {
	if registry == nil {
		registry = model.NewRegistry()
	}
	return &Ingress{conn: conn, registry: registry, targets: targets, log: infralogger.New("mqtt_ingress")}
}

// Registry returns the EVSE registry maintained by the ingress.
func (in *Ingress) Registry() *model.Registry { return in.registry }

// Start subscribes to the EVSE and CDR topics.
func (in *Ingress) Start() error {
	if err := in.conn.Subscribe(in.conn.Topic("evse", "+", "+"), KindIngress, in.onEVSE); err != nil {
		return err
	}
	return in.conn.Subscribe(in.conn.Topic("cdr"), KindIngress, in.onCDR)
}

type evseUpdate struct {
	Property string          `json:"property"`
	OldValue any             `json:"old_value"`
	NewValue any             `json:"new_value"`
	EVSE     json.RawMessage `json:"evse,omitempty"`
}

// evseData mirrors the data attributes of model.EVSE without its status.
type evseData struct {
	StationID  string            `json:"station_id"`
	PoolID     string            `json:"pool_id"`
	OperatorID string            `json:"operator_id"`
	Connectors []model.Connector `json:"connectors"`
	MaxPowerKW float64           `json:"max_power_kw"`
	Address    string            `json:"address"`
	Latitude   float64           `json:"latitude"`
	Longitude  float64           `json:"longitude"`
	Attributes map[string]string `json:"attributes"`
}

// version returns a new version of cur carrying the decoded data. Registered
// EVSEs may be read by a flush at any time and are never modified in place.
func (d evseData) version(cur *model.EVSE) *model.EVSE {
	e := cur.Clone()
	e.StationID = d.StationID
	e.PoolID = d.PoolID
	e.OperatorID = d.OperatorID
	e.Connectors = d.Connectors
	e.MaxPowerKW = d.MaxPowerKW
	e.Address = d.Address
	e.Latitude = d.Latitude
	e.Longitude = d.Longitude
	e.Attributes = d.Attributes
	return e
}

// parseEVSETopic extracts the id and event of <prefix>/evse/<id>/<event>.
func parseEVSETopic(topic string) (model.EVSEID, string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-3] != "evse" {
		return "", "", fmt.Errorf("unexpected topic %q", topic)
	}
	id := parts[len(parts)-2]
	if id == "" {
		return "", "", fmt.Errorf("empty evse id in %q", topic)
	}
	return model.EVSEID(id), parts[len(parts)-1], nil
}

func (in *Ingress) onEVSE(_ paho.Client, msg paho.Message) {
	id, event, err := parseEVSETopic(msg.Topic())
	if err != nil {
		in.log.Warnf("ingress: %v", err)
		ingressMessages.WithLabelValues("unknown", "invalid").Inc()
		return
	}
	if err := in.HandleEVSE(id, event, msg.Payload()); err != nil {
		in.log.Warnf("ingress %s %s: %v", event, id, err)
		ingressMessages.WithLabelValues(event, "invalid").Inc()
		return
	}
	ingressMessages.WithLabelValues(event, "ok").Inc()
}

func (in *Ingress) onCDR(_ paho.Client, msg paho.Message) {
	if err := in.HandleCDR(msg.Payload()); err != nil {
		in.log.Warnf("ingress cdr: %v", err)
		ingressMessages.WithLabelValues("cdr", "invalid").Inc()
		return
	}
	ingressMessages.WithLabelValues("cdr", "ok").Inc()
}

// HandleEVSE applies one EVSE event. Only decoding errors are returned;
// rejections by individual targets are logged.
func (in *Ingress) HandleEVSE(id model.EVSEID, event string, payload []byte) error {
	switch event {
	case "added":
		var d evseData
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &d); err != nil {
				return fmt.Errorf("decode evse: %w", err)
			}
		}
		e := in.registry.Replace(id, d.version)
		in.fanOut("added", func(t Target) error { return t.EnqueueEVSEAddition(e) })
	case "removed":
		e, ok := in.registry.Delete(id)
		if !ok {
			return fmt.Errorf("unknown evse %s", id)
		}
		in.fanOut("removed", func(t Target) error { return t.EnqueueEVSERemoval(e) })
	case "updated":
		var u evseUpdate
		if err := json.Unmarshal(payload, &u); err != nil {
			return fmt.Errorf("decode update: %w", err)
		}
		e, ok := in.registry.Get(id)
		if !ok {
			return fmt.Errorf("unknown evse %s", id)
		}
		if len(u.EVSE) > 0 {
			var d evseData
			if err := json.Unmarshal(u.EVSE, &d); err != nil {
				return fmt.Errorf("decode evse: %w", err)
			}
			e = in.registry.Replace(id, d.version)
		}
		in.fanOut("updated", func(t Target) error {
			return t.EnqueueEVSEDataUpdate(e, u.Property, u.OldValue, u.NewValue)
		})
	case "status":
		var s model.TimestampedStatus
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = time.Now().UTC()
		}
		e, _ := in.registry.GetOrCreate(id)
		old := e.SetStatus(s)
		in.fanOut("status", func(t Target) error { return t.EnqueueEVSEStatusUpdate(e, old, s) })
	default:
		return fmt.Errorf("unknown event %q", event)
	}
	return nil
}

// HandleCDR decodes a charge detail record and hands it to every target.
func (in *Ingress) HandleCDR(payload []byte) error {
	var cdr model.ChargeDetailRecord
	if err := json.Unmarshal(payload, &cdr); err != nil {
		return fmt.Errorf("decode cdr: %w", err)
	}
	if err := cdr.Validate(); err != nil {
		return err
	}
	in.fanOut("cdr", func(t Target) error { return t.EnqueueChargeDetailRecord(cdr) })
	return nil
}

func (in *Ingress) fanOut(event string, fn func(Target) error) {
	var errs []error
	for _, t := range in.targets {
		if err := fn(t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.ID(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		in.log.Warnf("ingress %s rejected: %v", event, err)
	}
}
