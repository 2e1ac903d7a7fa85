// Package cdrspool provides durable roaming.CDRSpool backends.
package cdrspool

import (
	"github.com/kilianp07/roamsync/core/factory"
	"github.com/kilianp07/roamsync/core/roaming"
)

var registry = factory.NewRegistry[roaming.CDRSpool]()

func init() {
	_ = registry.Register("memory", func(map[string]any) (roaming.CDRSpool, error) {
		return roaming.NewMemorySpool(), nil
	})
	_ = registry.Register("sqlite", func(conf map[string]any) (roaming.CDRSpool, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "roamsync-spool.db"
		}
		return NewSQLiteSpool(c.Path)
	})
	_ = registry.Register("redis", func(conf map[string]any) (roaming.CDRSpool, error) {
		var c RedisConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRedisSpool(c)
	})
}

// New builds the spool described by cfg. An empty type selects the memory spool.
func New(cfg factory.ModuleConfig) (roaming.CDRSpool, error) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	return registry.Create(cfg)
}

// Backends lists the available spool types.
func Backends() []string { return registry.Names() }
