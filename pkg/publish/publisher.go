package publish

import "context"

// Publisher delivers a serialized event payload to a named channel. The
// dispatcher treats any returned error as a failed attempt and retries, so
// implementations only need at-least-once semantics.
type Publisher interface {
	Publish(ctx context.Context, channel, payload string) error
}
