package roaming

import (
	"fmt"
	"time"
)

const (
	DefaultServiceCheckInterval = 31 * time.Second
	DefaultStatusCheckInterval  = 3 * time.Second
	DefaultMaxPushAttempts      = 5
	DefaultPushTimeout          = 60 * time.Second
	DefaultStatusLockTimeout    = 3 * time.Minute
)

// Config defines the scheduling and retry settings of a Provider.
type Config struct {
	// ServiceCheckInterval is the quiescence period before the service flush.
	ServiceCheckInterval time.Duration `json:"service_check_interval" yaml:"service_check_interval"`
	// StatusCheckInterval is the quiescence period before the status flush.
	StatusCheckInterval time.Duration `json:"status_check_interval" yaml:"status_check_interval"`
	// DisableAutoUpload keeps both schedulers disarmed. Manual flushes still work.
	DisableAutoUpload bool `json:"disable_auto_upload" yaml:"disable_auto_upload"`
	// MaxPushAttempts bounds the pushes of a data or status entry before it is
	// dropped. Charge detail records are never dropped.
	MaxPushAttempts int           `json:"max_push_attempts" yaml:"max_push_attempts"`
	PushTimeout     time.Duration `json:"push_timeout" yaml:"push_timeout"`
	// ServiceLockWait bounds the lock acquisition of the service flush. Zero
	// means a single non-blocking attempt.
	ServiceLockWait   time.Duration `json:"service_lock_wait" yaml:"service_lock_wait"`
	StatusLockTimeout time.Duration `json:"status_lock_timeout" yaml:"status_lock_timeout"`
	Filter            FilterConfig  `json:"filter" yaml:"filter"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults applies fallback values for unset fields.
func (c *Config) SetDefaults() {
	if c.ServiceCheckInterval <= 0 {
		c.ServiceCheckInterval = DefaultServiceCheckInterval
	}
	if c.StatusCheckInterval <= 0 {
		c.StatusCheckInterval = DefaultStatusCheckInterval
	}
	if c.MaxPushAttempts == 0 {
		c.MaxPushAttempts = DefaultMaxPushAttempts
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = DefaultPushTimeout
	}
	if c.ServiceLockWait < 0 {
		c.ServiceLockWait = 0
	}
	if c.StatusLockTimeout <= 0 {
		c.StatusLockTimeout = DefaultStatusLockTimeout
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.ServiceCheckInterval <= 0 || c.StatusCheckInterval <= 0 {
		return fmt.Errorf("check intervals must be positive")
	}
	if c.MaxPushAttempts < 1 {
		return fmt.Errorf("max_push_attempts must be at least 1, got %d", c.MaxPushAttempts)
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("push_timeout must be positive")
	}
	return nil
}
