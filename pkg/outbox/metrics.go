package outbox

// MetricsRecorder receives dispatch outcome counts. Implementations must be
// safe for use from the dispatch loop goroutine.
type MetricsRecorder interface {
	Dispatched(n int)
	Retried(n int)
	DeadLettered(n int)
}

type NopRecorder struct{}

func (NopRecorder) Dispatched(int)   {}
func (NopRecorder) Retried(int)      {}
func (NopRecorder) DeadLettered(int) {}
