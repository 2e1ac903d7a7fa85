package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/roamsync/core/metrics"
	"github.com/kilianp07/roamsync/infra/logger"
)

// InfluxSink writes flush summaries to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordFlush writes a flush summary point.
func (s *InfluxSink) RecordFlush(rec coremetrics.FlushRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("roaming_flush").
		AddTag("provider", rec.Provider).
		AddTag("kind", rec.Kind).
		AddTag("result", rec.Result).
		AddField("run", int64(rec.Run)).
		AddField("pushes", rec.Pushes).
		AddField("promoted", rec.Promoted).
		AddField("unpushed_removals", rec.Unpushed).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPushes writes one point per pushed batch.
func (s *InfluxSink) RecordPushes(recs []coremetrics.PushRecord) error {
	if len(recs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(recs))
	for _, r := range recs {
		points = append(points, write.NewPointWithMeasurement("roaming_push").
			AddTag("provider", r.Provider).
			AddTag("operation", r.Operation).
			AddTag("mode", r.Mode).
			AddTag("accepted", strconv.FormatBool(r.Accepted)).
			AddField("count", r.Count).
			AddField("rejected", r.Rejected).
			AddField("requeued", r.Requeued).
			AddField("dropped", r.Dropped).
			AddField("latency_ms", round3(r.Latency.Seconds()*1000)).
			SetTime(r.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordCDRs writes one point per charge detail record outcome.
func (s *InfluxSink) RecordCDRs(recs []coremetrics.CDRRecord) error {
	if len(recs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(recs))
	for _, r := range recs {
		points = append(points, write.NewPointWithMeasurement("roaming_cdr").
			AddTag("provider", r.Provider).
			AddTag("status", r.Status).
			AddField("session_id", r.SessionID).
			AddField("requeued", r.Requeued).
			SetTime(r.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordDrop writes a drop point.
func (s *InfluxSink) RecordDrop(rec coremetrics.DropRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("roaming_drop").
		AddTag("provider", rec.Provider).
		AddTag("container", rec.Container).
		AddField("count", rec.Count).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordException writes an exception point.
func (s *InfluxSink) RecordException(rec coremetrics.ExceptionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("roaming_exception").
		AddTag("provider", rec.Provider).
		AddTag("kind", rec.Kind).
		AddField("error", rec.Error).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
