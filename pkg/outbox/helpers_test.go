package outbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tansucloud/tansu-outbox/pkg/config"
	"github.com/tansucloud/tansu-outbox/pkg/model"
	"github.com/tansucloud/tansu-outbox/pkg/store/postgres"
	"github.com/tansucloud/tansu-outbox/pkg/tenant"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.OutboxEvent{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type publishCall struct {
	channel string
	payload string
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	errs  []error
}

func (p *fakePublisher) Publish(ctx context.Context, channel, payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	index := len(p.calls)
	p.calls = append(p.calls, publishCall{channel: channel, payload: payload})
	if index < len(p.errs) {
		return p.errs[index]
	}
	return nil
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeRecorder struct {
	mu           sync.Mutex
	dispatched   int
	retried      int
	deadLettered int
}

func (r *fakeRecorder) Dispatched(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched += n
}

func (r *fakeRecorder) Retried(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retried += n
}

func (r *fakeRecorder) DeadLettered(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadLettered += n
}

func newTestDispatcher(db *gorm.DB, publisher *fakePublisher, recorder *fakeRecorder, cfg config.OutboxConfig) *Dispatcher {
	repo := postgres.NewOutboxRepository(db)
	resolver := tenant.NewSingleStoreResolver(db)
	return NewDispatcher(repo, resolver, publisher, recorder, zap.NewNop(), cfg)
}

func runCycle(t *testing.T, db *gorm.DB, d *Dispatcher) {
	t.Helper()
	err := db.Transaction(func(tx *gorm.DB) error {
		return d.DispatchPending(context.Background(), tx)
	})
	if err != nil {
		t.Fatalf("dispatch cycle failed: %v", err)
	}
}

func insertEvent(t *testing.T, db *gorm.DB, event *model.OutboxEvent) {
	t.Helper()
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
}

func loadEvent(t *testing.T, db *gorm.DB, event *model.OutboxEvent) model.OutboxEvent {
	t.Helper()
	var loaded model.OutboxEvent
	if err := db.First(&loaded, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("failed to load event: %v", err)
	}
	return loaded
}

func forceDue(t *testing.T, db *gorm.DB, event *model.OutboxEvent) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Minute)
	err := db.Model(&model.OutboxEvent{}).
		Where("id = ?", event.ID).
		Update("next_attempt_at", past).Error
	if err != nil {
		t.Fatalf("failed to force event due: %v", err)
	}
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&model.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	return count
}
