package outbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tansucloud/tansu-outbox/pkg/model"
)

var ErrEventTypeRequired = errors.New("event type is required")

// Producer stages outbox events inside the caller's transaction. It never
// begins or commits transactions itself; the row becomes visible to the
// dispatcher when the caller commits.
type Producer struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewProducer(repo Repository, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue stages a pending event. When idempotencyKey is non-blank and an
// event with the same (type, key) pair is already staged or persisted, the
// call is a silent no-op. Blank or whitespace-only keys are treated as
// absent and never deduplicated.
func (p *Producer) Enqueue(ctx context.Context, tx *gorm.DB, eventType string, payload model.JSONB, idempotencyKey string) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	tx = tx.WithContext(ctx)
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return ErrEventTypeRequired
	}

	var keyPtr *string
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		// The transaction sees rows staged earlier in the same unit of
		// work, so one query covers both staged and committed duplicates.
		exists, err := p.repo.Exists(tx, eventType, key)
		if err != nil {
			return err
		}
		if exists {
			p.logger.Debug("duplicate outbox event suppressed",
				zap.String("event_type", eventType),
				zap.String("idempotency_key", key),
			)
			return nil
		}
		keyPtr = &key
	}

	event := model.OutboxEvent{
		ID:             uuid.New(),
		EventType:      eventType,
		IdempotencyKey: keyPtr,
		Payload:        payload,
		Status:         model.OutboxStatusPending,
		Attempts:       0,
		OccurredAt:     p.now().UTC(),
	}
	if err := p.repo.Insert(tx, &event); err != nil {
		return err
	}

	p.logger.Debug("outbox event staged",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", eventType),
	)
	return nil
}
