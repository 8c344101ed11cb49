package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"enroute/internal/logging"
)

type Collector struct {
	reg *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec   // endpoint, status
	UpstreamDuration *prometheus.HistogramVec // endpoint

	StaleResponses *prometheus.CounterVec // view
	PollDuration   *prometheus.HistogramVec
	BoardItems     *prometheus.GaugeVec
	ActiveSessions prometheus.Gauge

	Announcements *prometheus.CounterVec // outcome: played|queued|deduped|empty|failed

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	APIRate     prometheus.Gauge
	HTTPTimeout prometheus.Gauge // seconds
}

func NewCollector(apiRate float64, httpTimeout time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enroute_upstream_requests_total",
			Help: "Upstream API requests by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enroute_upstream_request_duration_seconds",
			Help:    "Upstream API request latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"endpoint"}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enroute_stale_responses_total",
			Help: "Poll results discarded because a newer poll had started.",
		}, []string{"view"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enroute_poll_duration_seconds",
			Help:    "Duration of one poll cycle.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"view"}),
		BoardItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "enroute_board_items",
			Help: "Items on the board after the last poll.",
		}, []string{"view"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enroute_active_sessions",
			Help: "Number of running board sessions.",
		}),
		Announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enroute_announcements_total",
			Help: "Announcement requests by outcome.",
		}, []string{"outcome"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enroute_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enroute_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enroute_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enroute_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		APIRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enroute_api_rate_limit",
			Help: "Configured upstream requests per second.",
		}),
		HTTPTimeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enroute_http_timeout_seconds",
			Help: "Configured upstream request timeout in seconds.",
		}),
	}

	reg.MustRegister(
		c.UpstreamRequests, c.UpstreamDuration,
		c.StaleResponses, c.PollDuration, c.BoardItems, c.ActiveSessions,
		c.Announcements,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.APIRate, c.HTTPTimeout,
	)

	c.APIRate.Set(apiRate)
	c.HTTPTimeout.Set(httpTimeout.Seconds())

	return c
}

func (c *Collector) UpstreamObserve(endpoint, status string, d time.Duration) {
	c.UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	c.UpstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (c *Collector) AnnouncementInc(outcome string) {
	c.Announcements.WithLabelValues(outcome).Inc()
}

func (c *Collector) StaleInc(view string) { c.StaleResponses.WithLabelValues(view).Inc() }

func (c *Collector) PollObserve(view string, items int, d time.Duration) {
	c.PollDuration.WithLabelValues(view).Observe(d.Seconds())
	c.BoardItems.WithLabelValues(view).Set(float64(items))
}

func (c *Collector) SessionsSet(n int) { c.ActiveSessions.Set(float64(n)) }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("metrics server error", "error", err)
		}
	}()
	logging.Info("metrics listening", "addr", addr)
	return srv
}
