package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/pcforge/storefront/internal/repository"
)

const batchSize = 100

// Sweeper expires online orders whose payment was never completed.
type Sweeper interface {
	ExpireAbandoned(ctx context.Context) (int, error)
}

type OutboxPoller struct {
	eventTick time.Duration
	sweepTick time.Duration
	repo      repository.OutboxRepository
	pub       Publisher
	sweeper   Sweeper
	log       *slog.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, pub Publisher, sweeper Sweeper, eventTick, sweepTick time.Duration, log *slog.Logger) *OutboxPoller {
	if log == nil {
		log = slog.Default()
	}
	return &OutboxPoller{
		eventTick: eventTick,
		sweepTick: sweepTick,
		repo:      repo,
		pub:       pub,
		sweeper:   sweeper,
		log:       log.With("component", "outbox"),
	}
}

// Run blocks until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	sweepTicker := time.NewTicker(p.sweepTick)
	defer eventTicker.Stop()
	defer sweepTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-sweepTicker.C:
			p.expireAbandonedOrders(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents publishes in id order and stops at the first
// failure so later events of the same order are not sent ahead of it.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch events", "error", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.pub.Publish(ctx, event); err != nil {
			p.log.ErrorContext(ctx, "failed to publish event", "event_id", event.ID, "error", err)
			return published
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.ErrorContext(ctx, "failed to mark event as processed", "event_id", event.ID, "error", err)
			return published
		}
		published++
	}
	return published
}

func (p *OutboxPoller) expireAbandonedOrders(ctx context.Context) {
	if p.sweeper == nil {
		return
	}
	n, err := p.sweeper.ExpireAbandoned(ctx)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to expire abandoned orders", "error", err)
		return
	}
	if n > 0 {
		p.log.InfoContext(ctx, "expired abandoned orders", "count", n)
	}
}
