package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the process metrics behind a private registry so
// tests can build isolated instances.
type Collector struct {
	reg *prometheus.Registry

	FeedConnected prometheus.Gauge

	MessagesProcessed  prometheus.Counter
	VehiclesWritten    prometheus.Counter
	DecodeFailures     prometheus.Counter
	CacheWriteFailures prometheus.Counter
	Reconnects         prometheus.Counter

	BatchWriteDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "klbus_feed_connected",
			Help: "1 if the upstream feed connection is established, 0 otherwise.",
		}),
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klbus_feed_messages_total",
			Help: "Total feed frames received.",
		}),
		VehiclesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klbus_vehicles_written_total",
			Help: "Total vehicle positions written to the cache.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klbus_decode_failures_total",
			Help: "Total feed frames that failed to decode.",
		}),
		CacheWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klbus_cache_write_failures_total",
			Help: "Total batches dropped due to cache write errors.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klbus_feed_reconnects_total",
			Help: "Total reconnect attempts after a feed disconnect.",
		}),
		BatchWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klbus_batch_write_duration_seconds",
			Help:    "Duration of cache batch writes.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	reg.MustRegister(
		c.FeedConnected,
		c.MessagesProcessed, c.VehiclesWritten,
		c.DecodeFailures, c.CacheWriteFailures, c.Reconnects,
		c.BatchWriteDuration,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
