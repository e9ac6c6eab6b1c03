package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are the Prometheus series exported by the scanner.
type Collectors struct {
	Sessions      *prometheus.CounterVec
	Ticks         *prometheus.CounterVec
	DecodeSeconds prometheus.Histogram
}

// NewCollectors creates the scanner series and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scanqr",
			Name:      "sessions_total",
			Help:      "Scan sessions by terminal outcome.",
		}, []string{"outcome"}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scanqr",
			Name:      "ticks_total",
			Help:      "Sampling ticks by result (hit, empty, error, skipped).",
		}, []string{"result"}),
		DecodeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scanqr",
			Name:      "decode_seconds",
			Help:      "Latency of one decode round-trip to the worker.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	reg.MustRegister(c.Sessions, c.Ticks, c.DecodeSeconds)
	return c
}

// Handler serves the series gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collectors) observeDecode(d time.Duration) {
	if c == nil {
		return
	}
	c.DecodeSeconds.Observe(d.Seconds())
}

func (c *Collectors) tick(result string) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(result).Inc()
}

func (c *Collectors) session(outcome string) {
	if c == nil {
		return
	}
	c.Sessions.WithLabelValues(outcome).Inc()
}
