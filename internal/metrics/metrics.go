// Package metrics exports SQLArray activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuannm99/recsql/internal/engine"
)

const (
	EventLabel  = "event"
	CachedLabel = "cached"
	Outcome     = "outcome"
	Succeeded   = "succeeded"
	Failed      = "failed"
)

// Collector is an engine.Observer that counts events.
type Collector struct {
	events     *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	loadedRows prometheus.Counter
	openTables prometheus.Gauge
}

var _ engine.Observer = (*Collector)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recsql_events_total",
				Help: "SQLArray operations by event type, cache use and outcome",
			},
			[]string{EventLabel, CachedLabel, Outcome},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recsql_event_duration_seconds",
				Help:    "Duration of SQLArray operations",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{EventLabel},
		),
		loadedRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recsql_loaded_rows_total",
				Help: "Rows loaded into tables",
			},
		),
		openTables: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recsql_open_tables",
				Help: "Tables loaded and not yet closed",
			},
		),
	}
	for _, col := range []prometheus.Collector{c.events, c.durations, c.loadedRows, c.openTables} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) OnEvent(e engine.Event) {
	outcome := Succeeded
	if e.Err != nil {
		outcome = Failed
	}
	c.events.WithLabelValues(string(e.Type), strconv.FormatBool(e.Cached), outcome).Inc()
	c.durations.WithLabelValues(string(e.Type)).Observe(e.Duration.Seconds())

	if e.Err != nil {
		return
	}
	switch e.Type {
	case engine.EventLoad:
		c.loadedRows.Add(float64(e.Rows))
		c.openTables.Inc()
	case engine.EventAttach:
		c.openTables.Inc()
	case engine.EventClose:
		c.openTables.Dec()
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
