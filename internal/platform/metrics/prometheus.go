package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared by the cache, the mutation layer and
// the chat tracker. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	CacheRefetchTotal       prometheus.Counter
	CacheRefetchErrorsTotal prometheus.Counter
	CacheSnapshotSize       prometheus.Gauge
	CacheActiveSubs         prometheus.Gauge
	MutationsTotal          *prometheus.CounterVec
	ImageUploadsTotal       *prometheus.CounterVec
	CleanupFailuresTotal    *prometheus.CounterVec
	NotificationFailures    prometheus.Counter
	UnreadMessages          prometheus.Gauge
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		CacheRefetchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refetch_total",
			Help:      "Full listing refetches performed by the cache.",
		}),
		CacheRefetchErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refetch_errors_total",
			Help:      "Full listing refetches that failed and kept the previous snapshot.",
		}),
		CacheSnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_snapshot_size",
			Help:      "Listings in the current cache snapshot.",
		}),
		CacheActiveSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_active_subscriptions",
			Help:      "Standing change-feed subscriptions held by the cache.",
		}),
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Listing mutations by operation and result.",
		}, []string{"op", "result"}),
		ImageUploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_uploads_total",
			Help:      "Image uploads to object storage by result.",
		}, []string{"result"}),
		CleanupFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Secondary cleanup steps that failed and were only logged.",
		}, []string{"kind"}),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Listing-created emails that could not be sent.",
		}),
		UnreadMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_messages_total",
			Help:      "Unread messages of the signed-in user.",
		}),
	}

	registry.MustRegister(
		m.CacheRefetchTotal,
		m.CacheRefetchErrorsTotal,
		m.CacheSnapshotSize,
		m.CacheActiveSubs,
		m.MutationsTotal,
		m.ImageUploadsTotal,
		m.CleanupFailuresTotal,
		m.NotificationFailures,
		m.UnreadMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RefetchDone(size int, err error) {
	if m == nil {
		return
	}
	m.CacheRefetchTotal.Inc()
	if err != nil {
		m.CacheRefetchErrorsTotal.Inc()
		return
	}
	m.CacheSnapshotSize.Set(float64(size))
}

func (m *Metrics) SnapshotCleared() {
	if m == nil {
		return
	}
	m.CacheSnapshotSize.Set(0)
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.CacheActiveSubs.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.CacheActiveSubs.Dec()
}

func (m *Metrics) Mutation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MutationsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ImageUpload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ImageUploadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CleanupFailed(kind string) {
	if m == nil {
		return
	}
	m.CleanupFailuresTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationFailures.Inc()
}

func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.UnreadMessages.Set(float64(n))
}
