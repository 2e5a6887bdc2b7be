// Package metrics exposes Prometheus collectors for the notification
// pipeline, the map and the HTTP surface.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kampus/api/internal/notify"
)

// Collector bundles the service metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Notifications  *prometheus.CounterVec
	Suppressed     *prometheus.CounterVec
	FeedBatches    *prometheus.CounterVec
	ActiveWatchers prometheus.Gauge
	MarkersOffset  prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
	HTTPDurations  *prometheus.HistogramVec
}

// New registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice returns the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	notifications, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kampus_notifications_total",
		Help: "Notifications presented to watchers, labeled by kind.",
	}, []string{"kind"}), "kampus_notifications_total")
	if err != nil {
		return nil, err
	}
	suppressed, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kampus_notifications_suppressed_total",
		Help: "Eligible changes that were not presented, labeled by reason.",
	}, []string{"reason"}), "kampus_notifications_suppressed_total")
	if err != nil {
		return nil, err
	}
	batches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kampus_feed_batches_total",
		Help: "Live feed batches received by watchers, labeled by result.",
	}, []string{"result"}), "kampus_feed_batches_total")
	if err != nil {
		return nil, err
	}
	watchers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kampus_active_watchers",
		Help: "Open live notification streams.",
	}), "kampus_active_watchers")
	if err != nil {
		return nil, err
	}
	offset, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kampus_markers_offset_total",
		Help: "Map markers displaced because they shared a location.",
	}), "kampus_markers_offset_total")
	if err != nil {
		return nil, err
	}
	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kampus_http_requests_total",
		Help: "Handled HTTP requests, labeled by method and status code.",
	}, []string{"method", "code"}), "kampus_http_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kampus_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method"}), "kampus_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Notifications:  notifications,
		Suppressed:     suppressed,
		FeedBatches:    batches,
		ActiveWatchers: watchers,
		MarkersOffset:  offset,
		HTTPRequests:   requests,
		HTTPDurations:  durations,
	}, nil
}

// Handler serves the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveBatch implements notify.Observer.
func (c *Collector) ObserveBatch(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.FeedBatches.WithLabelValues(result).Inc()
}

// ObserveDecision implements notify.Observer.
func (c *Collector) ObserveDecision(d notify.Decision) {
	if c == nil {
		return
	}
	switch {
	case d.Notify:
		c.Notifications.WithLabelValues(string(d.Kind)).Inc()
	case d.Reason != "":
		c.Suppressed.WithLabelValues(d.Reason).Inc()
	}
}

// WatcherStarted and WatcherStopped track open notification streams.
func (c *Collector) WatcherStarted() {
	if c != nil {
		c.ActiveWatchers.Inc()
	}
}

func (c *Collector) WatcherStopped() {
	if c != nil {
		c.ActiveWatchers.Dec()
	}
}

// ObserveMarkers records how many markers of a render were displaced.
func (c *Collector) ObserveMarkers(offset int) {
	if c != nil && offset > 0 {
		c.MarkersOffset.Add(float64(offset))
	}
}

// ObserveRequest records one handled HTTP request.
func (c *Collector) ObserveRequest(method string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.HTTPDurations.WithLabelValues(method).Observe(elapsed.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
