package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tansucloud/tansu-outbox/pkg/model"
)

// OutboxRepository persists outbox events. Mutating methods operate on the
// caller's transaction; read methods for the admin API use the repository's
// own connection.
type OutboxRepository struct {
	db       *gorm.DB
	lockRows bool
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// WithRowLocking makes ListDue claim rows with FOR UPDATE SKIP LOCKED so that
// multiple dispatcher replicas can poll the same store without double
// dispatch. Postgres only.
func (r *OutboxRepository) WithRowLocking() *OutboxRepository {
	r.lockRows = true
	return r
}

func (r *OutboxRepository) Insert(tx *gorm.DB, event *model.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(event).Error
}

func (r *OutboxRepository) Exists(tx *gorm.DB, eventType, idempotencyKey string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&model.OutboxEvent{}).
		Where("event_type = ? AND idempotency_key = ?", eventType, idempotencyKey).
		Count(&count).Error
	return count > 0, err
}

func (r *OutboxRepository) ListDue(tx *gorm.DB, now time.Time, limit int) ([]model.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if limit <= 0 {
		limit = 50
	}
	query := tx.
		Where("status IN ?", []string{model.OutboxStatusPending, model.OutboxStatusFailed}).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("occurred_at ASC").
		Limit(limit)
	if r.lockRows {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var events []model.OutboxEvent
	err := query.Find(&events).Error
	return events, err
}

func (r *OutboxRepository) MarkDispatched(tx *gorm.DB, id uuid.UUID, attempts int, at time.Time) error {
	return tx.Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.OutboxStatusDispatched,
			"attempts":      attempts,
			"dispatched_at": at,
		}).Error
}

func (r *OutboxRepository) MarkFailed(tx *gorm.DB, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	return tx.Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          model.OutboxStatusFailed,
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastError,
		}).Error
}

func (r *OutboxRepository) MarkDeadLettered(tx *gorm.DB, id uuid.UUID, attempts int, lastError string) error {
	return tx.Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.OutboxStatusDeadLettered,
			"attempts":   attempts,
			"last_error": lastError,
		}).Error
}

func (r *OutboxRepository) ListByStatus(ctx context.Context, status string, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("occurred_at ASC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var events []model.OutboxEvent
	err := query.Find(&events).Error
	return events, err
}

func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
