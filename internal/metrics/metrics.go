// Package metrics exposes runtime counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lipsync_ticks_total",
			Help: "Total number of engine ticks",
		},
	)

	VisemeChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lipsync_viseme_changes_total",
			Help: "Number of times each viseme became current",
		},
		[]string{"viseme"},
	)

	Volume = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lipsync_volume",
			Help: "Last reported speech volume in [0, 1]",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lipsync_tick_duration_seconds",
			Help:    "Time spent producing one animation frame",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lipsync_stream_clients",
			Help: "Number of connected frame stream clients",
		},
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lipsync_stream_dropped_frames_total",
			Help: "Frames dropped for slow stream clients",
		},
	)
)

// ObserveTick records one engine tick.
func ObserveTick(viseme string, changed bool, volume float64, took time.Duration) {
	Ticks.Inc()
	Volume.Set(volume)
	TickDuration.Observe(took.Seconds())
	if changed {
		VisemeChanges.WithLabelValues(viseme).Inc()
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
