package config

import (
	"errors"

	"github.com/kilianp07/roamsync/core/factory"
	"github.com/kilianp07/roamsync/core/roaming"
)

// ProviderConfig describes one upstream roaming provider.
type ProviderConfig struct {
	ID      string               `json:"id"`
	Roaming roaming.Config       `json:"roaming"`
	Pusher  factory.ModuleConfig `json:"pusher"`
}

// SetDefaults applies engine defaults and selects the log pusher when none is set.
func (p *ProviderConfig) SetDefaults() {
	p.Roaming.SetDefaults()
	if p.Pusher.Type == "" {
		p.Pusher.Type = "log"
	}
}

// Validate checks mandatory fields.
func (p ProviderConfig) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	return p.Roaming.Validate()
}

// UsesSharedMQTT is true for an mqtt pusher without its own broker settings.
func (p ProviderConfig) UsesSharedMQTT() bool {
	if p.Pusher.Type != "mqtt" {
		return false
	}
	_, own := p.Pusher.Conf["mqtt"]
	return !own
}
