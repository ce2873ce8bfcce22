package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OutboxStatusPending      = "pending"
	OutboxStatusFailed       = "failed"
	OutboxStatusDispatched   = "dispatched"
	OutboxStatusDeadLettered = "dead_lettered"
)

// OutboxEvent is a domain event staged alongside a business write and
// delivered asynchronously by the dispatcher.
type OutboxEvent struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	EventType      string    `gorm:"not null;index:idx_outbox_events_dedup"`
	IdempotencyKey *string   `gorm:"index:idx_outbox_events_dedup"`
	Payload        JSONB     `gorm:"type:jsonb"`
	Status         string    `gorm:"type:varchar(20);not null;default:'pending';index"`
	Attempts       int       `gorm:"not null;default:0"`
	OccurredAt     time.Time `gorm:"not null;index"`
	NextAttemptAt  *time.Time
	DispatchedAt   *time.Time
	LastError      *string
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// DedupKey returns the (type, key) deduplication key. The second return is
// false when the event carries no usable idempotency key.
func (e *OutboxEvent) DedupKey() (string, bool) {
	if e.IdempotencyKey == nil {
		return "", false
	}
	key := strings.TrimSpace(*e.IdempotencyKey)
	if key == "" {
		return "", false
	}
	return e.EventType + "\x00" + key, true
}

// Due reports whether the event is eligible for dispatch at the given time.
func (e *OutboxEvent) Due(now time.Time) bool {
	if e.Terminal() {
		return false
	}
	if e.NextAttemptAt == nil {
		return true
	}
	return !e.NextAttemptAt.After(now)
}

func (e *OutboxEvent) Terminal() bool {
	return e.Status == OutboxStatusDispatched || e.Status == OutboxStatusDeadLettered
}

// PayloadText renders the payload as the raw JSON document published to the
// channel, or the literal "null" when the event has no payload.
func (e *OutboxEvent) PayloadText() (string, error) {
	if e.Payload == nil {
		return "null", nil
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
