package metrics

import (
	"errors"

	"github.com/kilianp07/roamsync/core/factory"
	coremetrics "github.com/kilianp07/roamsync/core/metrics"
)

// InfluxConfig is the conf block of the "influx" sink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Strict fails sink creation instead of falling back to a NopSink when the
	// server is unhealthy.
	Strict bool `json:"strict"`
}

func (c *InfluxConfig) setDefaults() {
	if c.Bucket == "" {
		c.Bucket = "roaming"
	}
}

func newInfluxFromConf(conf map[string]any) (coremetrics.MetricsSink, error) {
	var c InfluxConfig
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	c.setDefaults()
	if c.URL == "" {
		return nil, errors.New("influx sink: url is required")
	}
	sink := NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket)
	if _, ok := sink.(coremetrics.NopSink); ok && c.Strict {
		return nil, errors.New("influx sink: server unhealthy")
	}
	return sink, nil
}

func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})
	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSink()
	})
	_ = coremetrics.RegisterMetricsSink("influx", newInfluxFromConf)
}
