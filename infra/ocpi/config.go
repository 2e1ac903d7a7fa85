package ocpi

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/roamsync/auth"
)

// Config configures the HTTP pusher.
type Config struct {
	// BaseURL of the partner endpoint, e.g. "https://partner.example/ocpi/2.2".
	BaseURL string `json:"base_url"`
	// Timeout of a single HTTP attempt.
	Timeout time.Duration `json:"timeout"`
	// MaxRetries bounds the retries of transport and 5xx failures.
	MaxRetries      uint64        `json:"max_retries"`
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
	Auth            auth.Conf     `json:"auth"`
	// Headers are added to every request.
	Headers map[string]string `json:"headers"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
}

// Validate checks mandatory settings.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("ocpi: base_url required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("ocpi: base_url %q must be http(s)", c.BaseURL)
	}
	return nil
}
