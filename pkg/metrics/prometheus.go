package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutboxDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tansu_outbox_dispatched_total",
			Help: "Total number of outbox events marked dispatched",
		},
		[]string{"tenant"},
	)

	OutboxRetriedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tansu_outbox_retried_total",
			Help: "Total number of outbox publish failures scheduled for retry",
		},
		[]string{"tenant"},
	)

	OutboxDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tansu_outbox_dead_lettered_total",
			Help: "Total number of outbox events that exhausted their attempts",
		},
		[]string{"tenant"},
	)
)

// Recorder adapts the package counters to the dispatcher's MetricsRecorder
// interface, pinning the tenant label.
type Recorder struct {
	tenant string
}

func NewRecorder(tenant string) *Recorder {
	return &Recorder{tenant: tenant}
}

func (r *Recorder) Dispatched(n int) {
	OutboxDispatchedTotal.WithLabelValues(r.tenant).Add(float64(n))
}

func (r *Recorder) Retried(n int) {
	OutboxRetriedTotal.WithLabelValues(r.tenant).Add(float64(n))
}

func (r *Recorder) DeadLettered(n int) {
	OutboxDeadLetteredTotal.WithLabelValues(r.tenant).Add(float64(n))
}
