package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestRecorderIncrementsTenantCounters(t *testing.T) {
	recorder := NewRecorder("acme-recorder-test")

	before := counterValue(t, OutboxDispatchedTotal.WithLabelValues("acme-recorder-test"))
	recorder.Dispatched(3)
	recorder.Retried(2)
	recorder.DeadLettered(1)

	if got := counterValue(t, OutboxDispatchedTotal.WithLabelValues("acme-recorder-test")); got != before+3 {
		t.Fatalf("expected dispatched counter +3, got %v", got-before)
	}
	if got := counterValue(t, OutboxRetriedTotal.WithLabelValues("acme-recorder-test")); got != 2 {
		t.Fatalf("expected retried counter 2, got %v", got)
	}
	if got := counterValue(t, OutboxDeadLetteredTotal.WithLabelValues("acme-recorder-test")); got != 1 {
		t.Fatalf("expected dead lettered counter 1, got %v", got)
	}
}

func TestRecorderIsolatesTenants(t *testing.T) {
	first := NewRecorder("tenant-a-isolation-test")
	second := NewRecorder("tenant-b-isolation-test")

	first.Dispatched(5)
	second.Dispatched(1)

	if got := counterValue(t, OutboxDispatchedTotal.WithLabelValues("tenant-a-isolation-test")); got != 5 {
		t.Fatalf("expected tenant-a counter 5, got %v", got)
	}
	if got := counterValue(t, OutboxDispatchedTotal.WithLabelValues("tenant-b-isolation-test")); got != 1 {
		t.Fatalf("expected tenant-b counter 1, got %v", got)
	}
}
