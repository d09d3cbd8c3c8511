// Package metrics exports connection, delivery and cache statistics to Prometheus.
package metrics

import (
	"net/http"
	"strings"

	"github.com/estatehub/realtime/internal/application/realtime"
	"github.com/estatehub/realtime/internal/infrastructure/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "estatehub_realtime"

// Sources are read on every scrape. Nil sources are skipped.
type Sources struct {
	Registry   *realtime.Registry
	Dispatcher *realtime.Dispatcher
	Cache      *cache.Cache
}

// Metrics holds the collectors updated directly by the application.
type Metrics struct {
	reg *prometheus.Registry

	NotificationsCreated prometheus.Counter
	PersistFailures      prometheus.Counter
	Invalidations        *prometheus.CounterVec
}

// New builds a private registry, so several instances can coexist in tests.
func New(src Sources) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		NotificationsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notifications persisted by the delivery coordinator",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_persist_failures_total",
			Help:      "Notification writes that failed and were not published",
		}),
		Invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidated_entries_total",
			Help:      "Cache entries dropped by pattern invalidation, by pattern family",
		}, []string{"family"}),
	}

	if r := src.Registry; r != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live socket connections",
		}, func() float64 { return float64(r.Len()) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member",
		}, func() float64 { return float64(r.RoomCount()) })
	}
	if d := src.Dispatcher; d != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Publish calls",
		}, func() float64 { return float64(d.Stats().Published) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Per-connection deliveries accepted",
		}, func() float64 { return float64(d.Stats().Delivered) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Per-connection deliveries that failed",
		}, func() float64 { return float64(d.Stats().Failed) })
	}
	if c := src.Cache; c != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups that found a live entry",
		}, func() float64 { return float64(c.Stats().Hits) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that found nothing or an expired entry",
		}, func() float64 { return float64(c.Stats().Misses) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries removed by expiry or capacity",
		}, func() float64 { return float64(c.Stats().Evictions) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held",
		}, func() float64 { return float64(c.Len()) })
	}
	return m
}

// NotificationCreated implements delivery.Recorder.
func (m *Metrics) NotificationCreated() { m.NotificationsCreated.Inc() }

// PersistFailed implements delivery.Recorder.
func (m *Metrics) PersistFailed() { m.PersistFailures.Inc() }

// CacheInvalidated implements delivery.Recorder.
func (m *Metrics) CacheInvalidated(pattern string, removed int) {
	m.Invalidations.WithLabelValues(PatternFamily(pattern)).Add(float64(removed))
}

// PatternFamily maps an invalidation pattern onto a fixed label set. Raw
// patterns carry user ids and operator input.
func PatternFamily(pattern string) string {
	switch {
	case strings.Contains(pattern, "properties"):
		return "properties"
	case strings.Contains(pattern, "user_"):
		return "user"
	default:
		return "other"
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }
