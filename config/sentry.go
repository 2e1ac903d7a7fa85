package config

import (
	"errors"
	"fmt"
)

// SentryConfig defines how engine failures reach Sentry: contained pusher
// panics, entries dropped after repeated push failures and charge detail
// records the partner did not forward. An empty DSN disables reporting.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
	// ServerName identifies the roamsync instance. Sentry uses the host name
	// when empty.
	ServerName string `json:"server_name"`
	// Tags are set on every event. The engine adds a provider tag itself.
	Tags map[string]string `json:"tags"`
}

// Validate checks the sample rate and the tags.
func (c SentryConfig) Validate() error {
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return fmt.Errorf("traces_sample_rate %v is outside [0, 1]", c.TracesSampleRate)
	}
	if _, ok := c.Tags["provider"]; ok {
		return errors.New("tag provider is reserved")
	}
	return nil
}
