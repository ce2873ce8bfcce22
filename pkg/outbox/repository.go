package outbox

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tansucloud/tansu-outbox/pkg/model"
)

// Repository is the store access the producer and dispatcher need. All
// methods run on the caller's transaction so that staging and status changes
// commit atomically with the surrounding unit of work.
type Repository interface {
	Insert(tx *gorm.DB, event *model.OutboxEvent) error
	Exists(tx *gorm.DB, eventType, idempotencyKey string) (bool, error)
	ListDue(tx *gorm.DB, now time.Time, limit int) ([]model.OutboxEvent, error)
	MarkDispatched(tx *gorm.DB, id uuid.UUID, attempts int, at time.Time) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error
	MarkDeadLettered(tx *gorm.DB, id uuid.UUID, attempts int, lastError string) error
}
