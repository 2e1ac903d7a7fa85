// Package mqtt connects the engine to an MQTT broker: the ingress consumes EVSE
// events published by the charging station management system and the pusher
// forwards batches to partners that integrate over MQTT.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremon "github.com/kilianp07/roamsync/core/monitoring"
	"github.com/kilianp07/roamsync/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	AuthMethod string `json:"auth_method"`
	// QoS per message kind: "data", "status", "cdr" and "ingress".
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	// TopicPrefix is prepended to every topic, default "roaming".
	TopicPrefix string      `json:"topic_prefix"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "roamsync-" + uuid.NewString()
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "roaming"
	}
	c.TopicPrefix = strings.Trim(c.TopicPrefix, "/")
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker required")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("mqtt: unknown auth_method %q", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Conn is a broker connection shared by the ingress and the pushers. It
// restores its subscriptions after a reconnect.
type Conn struct {
	cli    pahoClient
	qos    map[string]byte
	prefix string
	logger logger.Logger

	maxRetries int
	backoff    time.Duration

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// Connect dials the broker described by cfg.
func Connect(cfg Config) (*Conn, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_client")
	c := &Conn{
		qos:        cfg.QoS,
		prefix:     cfg.TopicPrefix,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		subs:       make(map[string]subscription),
	}
	opts.OnConnect = func(pc paho.Client) {
		log.Infof("MQTT connected")
		c.resubscribe(pc)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	cli := newMQTTClient(opts)
	c.cli = cli
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "certificate" || cfg.AuthMethod == "both" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// Prefix returns the configured topic prefix.
func (c *Conn) Prefix() string { return c.prefix }

// Topic joins parts below the topic prefix.
func (c *Conn) Topic(parts ...string) string {
	return c.prefix + "/" + strings.Join(parts, "/")
}

func (c *Conn) qosFor(kind string) byte {
	if q, ok := c.qos[kind]; ok {
		return q
	}
	return 0
}

// Publish sends payload and waits for the broker to accept it, retrying with
// an exponential delay. Failures are reported to monitoring.
func (c *Conn) Publish(ctx context.Context, kind, topic string, payload []byte) error {
	qos := c.qosFor(kind)
	var publishErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		token := c.cli.Publish(topic, qos, false, payload)
		select {
		case <-token.Done():
			publishErr = token.Error()
		case <-ctx.Done():
			publishErr = ctx.Err()
		}
		if publishErr == nil {
			c.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-time.After(c.backoff * time.Duration(1<<attempt)):
		case <-ctx.Done():
			publishErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Subscribe registers handler for topic. The subscription is restored on
// every reconnect.
func (c *Conn) Subscribe(topic, kind string, handler paho.MessageHandler) error {
	sub := subscription{qos: c.qosFor(kind), handler: handler}
	c.mu.Lock()
	c.subs[topic] = sub
	c.mu.Unlock()
	if token := c.cli.Subscribe(topic, sub.qos, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Conn) resubscribe(pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()
	for topic, s := range subs {
		if token := pc.Subscribe(topic, s.qos, s.handler); token.Wait() && token.Error() != nil {
			c.logger.Errorf("subscribe error: %v", token.Error())
		}
	}
}

// Disconnect gracefully closes the MQTT connection.
func (c *Conn) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
