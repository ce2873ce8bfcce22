package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tansucloud/tansu-outbox/pkg/config"
	"github.com/tansucloud/tansu-outbox/pkg/model"
	"github.com/tansucloud/tansu-outbox/pkg/publish"
	"github.com/tansucloud/tansu-outbox/pkg/tenant"
)

const (
	defaultPollInterval   = 5 * time.Second
	defaultBatchSize      = 50
	defaultMaxAttempts    = 5
	defaultPublishTimeout = 10 * time.Second
	defaultChannel        = "tansu.outbox"
	defaultTenant         = "default"
)

// Dispatcher polls the outbox store for due events and publishes them with
// bounded retries. One dispatch cycle is a single transaction: either every
// status change in the batch commits, or none do and the rows are picked up
// again on the next poll.
type Dispatcher struct {
	repo           Repository
	resolver       tenant.Resolver
	publisher      publish.Publisher
	recorder       MetricsRecorder
	logger         *zap.Logger
	channel        string
	tenantName     string
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

func NewDispatcher(
	repo Repository,
	resolver tenant.Resolver,
	publisher publish.Publisher,
	recorder MetricsRecorder,
	logger *zap.Logger,
	cfg config.OutboxConfig,
) *Dispatcher {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	if cfg.DispatchTenant == "" {
		cfg.DispatchTenant = defaultTenant
	}
	return &Dispatcher{
		repo:           repo,
		resolver:       resolver,
		publisher:      publisher,
		recorder:       recorder,
		logger:         logger,
		channel:        cfg.Channel,
		tenantName:     cfg.DispatchTenant,
		batchSize:      cfg.BatchSize,
		maxAttempts:    cfg.MaxAttempts,
		pollInterval:   cfg.PollInterval,
		publishTimeout: cfg.PublishTimeout,
		now:            time.Now,
	}
}

// Run polls until the context is cancelled. Cycle errors are logged and the
// loop continues; a failed cycle rolls back and its rows stay due.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("outbox dispatcher starting",
		zap.Duration("poll_interval", d.pollInterval),
		zap.Int("batch_size", d.batchSize),
		zap.Int("max_attempts", d.maxAttempts),
		zap.String("channel", d.channel),
		zap.String("tenant", d.tenantName),
	)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.dispatchCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			d.dispatchCycle(ctx)
		}
	}
}

func (d *Dispatcher) dispatchCycle(ctx context.Context) {
	uow, err := d.resolver.Resolve(ctx, d.tenantName)
	if err != nil {
		d.logger.Warn("failed to resolve tenant unit of work",
			zap.String("tenant", d.tenantName), zap.Error(err))
		return
	}

	err = uow.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return d.DispatchPending(ctx, tx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("outbox dispatch cycle failed", zap.Error(err))
	}
}

type dispatchGroup struct {
	lead       model.OutboxEvent
	duplicates []model.OutboxEvent
}

// DispatchPending runs one dispatch cycle against the given transaction.
// Publisher failures are handled per event and never returned; repository
// errors abort the cycle so the transaction rolls back as a whole.
func (d *Dispatcher) DispatchPending(ctx context.Context, tx *gorm.DB) error {
	now := d.now().UTC()

	events, err := d.repo.ListDue(tx, now, d.batchSize)
	if err != nil {
		return fmt.Errorf("list due outbox events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	// Group the batch by dedup key, preserving occurred_at order: the
	// earliest event of each (type, key) pair publishes on behalf of the
	// rest.
	var groups []*dispatchGroup
	byKey := make(map[string]*dispatchGroup)
	for _, event := range events {
		key, ok := event.DedupKey()
		if ok {
			if group, seen := byKey[key]; seen {
				group.duplicates = append(group.duplicates, event)
				continue
			}
		}
		group := &dispatchGroup{lead: event}
		groups = append(groups, group)
		if ok {
			byKey[key] = group
		}
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.dispatchGroup(ctx, tx, group, now); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) dispatchGroup(ctx context.Context, tx *gorm.DB, group *dispatchGroup, now time.Time) error {
	lead := group.lead
	attempts := lead.Attempts + 1

	payload, err := lead.PayloadText()
	pubErr := err
	if pubErr == nil {
		pubErr = d.publish(ctx, payload)
	}

	// Duplicates are resolved regardless of the lead's outcome: the lead
	// either published now or keeps retrying on their behalf.
	for _, dup := range group.duplicates {
		if err := d.repo.MarkDispatched(tx, dup.ID, dup.Attempts, now); err != nil {
			return fmt.Errorf("mark duplicate dispatched %s: %w", dup.ID, err)
		}
	}

	if pubErr == nil {
		if err := d.repo.MarkDispatched(tx, lead.ID, attempts, now); err != nil {
			return fmt.Errorf("mark dispatched %s: %w", lead.ID, err)
		}
		d.recorder.Dispatched(1 + len(group.duplicates))
		return nil
	}

	if len(group.duplicates) > 0 {
		d.recorder.Dispatched(len(group.duplicates))
	}

	if attempts >= d.maxAttempts {
		if err := d.repo.MarkDeadLettered(tx, lead.ID, attempts, pubErr.Error()); err != nil {
			return fmt.Errorf("mark dead lettered %s: %w", lead.ID, err)
		}
		d.recorder.DeadLettered(1)
		d.logger.Warn("outbox event dead lettered",
			zap.String("event_id", lead.ID.String()),
			zap.String("event_type", lead.EventType),
			zap.Int("attempts", attempts),
			zap.Error(pubErr),
		)
		return nil
	}

	next := now.Add(backoffDelay(attempts))
	if err := d.repo.MarkFailed(tx, lead.ID, attempts, next, pubErr.Error()); err != nil {
		return fmt.Errorf("mark failed %s: %w", lead.ID, err)
	}
	d.recorder.Retried(1)
	d.logger.Warn("outbox publish failed, retry scheduled",
		zap.String("event_id", lead.ID.String()),
		zap.String("event_type", lead.EventType),
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(pubErr),
	)
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, payload string) error {
	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	return d.publisher.Publish(publishCtx, d.channel, payload)
}
