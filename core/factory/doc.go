// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Pushers and metrics sinks are both built this way:
//
//	reg := factory.NewRegistry[roaming.Pusher]()
//	reg.Register("log", func(conf map[string]any) (roaming.Pusher, error) {
//	    var c struct{ Component string `json:"component"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return roaming.NewLogPusher(logger.New(c.Component)), nil
//	})
//	p, err := reg.Create(factory.ModuleConfig{Type: "log"})
package factory
