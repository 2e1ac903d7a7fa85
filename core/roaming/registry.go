package roaming

import "github.com/kilianp07/roamsync/core/factory"

var pusherRegistry = factory.NewRegistry[Pusher]()

// RegisterPusher makes a Pusher implementation available under name.
func RegisterPusher(name string, f factory.Factory[Pusher]) error {
	return pusherRegistry.Register(name, f)
}

// NewPusher builds the Pusher described by cfg.
func NewPusher(cfg factory.ModuleConfig) (Pusher, error) {
	return pusherRegistry.Create(cfg)
}

// PusherTypes lists the registered Pusher names.
func PusherTypes() []string { return pusherRegistry.Names() }
