package beacon

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters for the collection and sync pipeline. Dropped
// events are counted here so permanent sync failures stay observable.
type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	StorageFailures prometheus.Counter
	Pushes          *prometheus.CounterVec
	RetryEnqueued   prometheus.Counter
	RetryDropped    *prometheus.CounterVec
	GeoLookups      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "events_recorded_total",
			Help:      "Events appended to the local event log.",
		}, []string{"type"}),
		StorageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "storage_write_failures_total",
			Help:      "Local storage writes that failed.",
		}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "remote_pushes_total",
			Help:      "Remote document pushes by result.",
		}, []string{"result"}),
		RetryEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "retry_enqueued_total",
			Help:      "Events handed to the retry queue.",
		}),
		RetryDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "retry_dropped_total",
			Help:      "Events permanently dropped from the retry queue.",
		}, []string{"reason"}),
		GeoLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "geo_lookups_total",
			Help:      "Geo lookups by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.EventsRecorded,
		m.StorageFailures,
		m.Pushes,
		m.RetryEnqueued,
		m.RetryDropped,
		m.GeoLookups,
	)
	return m
}

// Label values.
const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultCached  = "cached"

	dropExhausted = "exhausted"
	dropOverflow  = "overflow"
)
