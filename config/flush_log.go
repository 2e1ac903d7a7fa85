package config

import (
	"fmt"
)

// FlushLogConfig defines settings for the flush audit log and its rotation.
type FlushLogConfig struct {
	Enabled bool `json:"enabled"`
	// Backend selects the log store type: "jsonl" (rotated JSON lines file),
	// "jsonl_plain" (single file, never rotated) or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *FlushLogConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "flush.log"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 50
	}
}

// Validate checks mandatory fields.
func (c FlushLogConfig) Validate() error {
	switch c.Backend {
	case "jsonl", "jsonl_plain", "sqlite":
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
