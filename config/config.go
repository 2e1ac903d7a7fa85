// Package config loads the service configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/roamsync/core/factory"
	"github.com/kilianp07/roamsync/core/metrics"
	"github.com/kilianp07/roamsync/infra/mqtt"
)

type Config struct {
	MQTT      mqtt.Config          `json:"mqtt"`
	Ingress   IngressConfig        `json:"ingress"`
	Providers []ProviderConfig     `json:"providers"`
	Metrics   metrics.Config       `json:"metrics"`
	FlushLog  FlushLogConfig       `json:"flush_log"`
	Spool     factory.ModuleConfig `json:"spool"`
	Sentry    SentryConfig         `json:"sentry"`
	API       APIConfig            `json:"api"`
}

// IngressConfig enables the MQTT ingress. It uses the mqtt section for the
// broker connection.
type IngressConfig struct {
	Enabled bool `json:"enabled"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	// Addr is the listen address; empty disables the API.
	Addr string `json:"addr"`
	// Token is the bearer token required on every route but /healthz.
	Token string `json:"token"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.FlushLog.SetDefaults()
	if c.Spool.Type == "" {
		c.Spool.Type = "memory"
	}
	for i := range c.Providers {
		c.Providers[i].SetDefaults()
	}
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("at least one provider is required"))
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("providers[%d]: %w", i, err))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}
	if c.Ingress.Enabled {
		if err := c.MQTT.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ingress: %w", err))
		}
	} else if c.SharesMQTT() {
		if err := c.MQTT.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if err := c.FlushLog.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("flush_log: %w", err))
	}
	if err := c.Sentry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sentry: %w", err))
	}
	return errors.Join(errs...)
}

// SharesMQTT reports whether a provider publishes through the mqtt section's
// broker connection.
func (c Config) SharesMQTT() bool {
	for _, p := range c.Providers {
		if p.UsesSharedMQTT() {
			return true
		}
	}
	return false
}
