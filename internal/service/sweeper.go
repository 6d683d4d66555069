package service

import (
	"context"
	"time"

	"quote-service/internal/models"
	"quote-service/internal/store"
	"quote-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SweepResult reports a sweep pass
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
}

// Sweeper reclaims quotes whose reservation window lapsed unused. It
// is invoked inline before issuance and redemption rather than from a
// background scheduler, so abandoned reservations are returned to
// stock continuously.
type Sweeper struct {
	store    ReservationStore
	events   EventPublisher
	logger   *zap.Logger
	maxBatch int
}

// NewSweeper creates a new sweeper
func NewSweeper(store ReservationStore, events EventPublisher, maxBatch int) *Sweeper {
	return &Sweeper{
		store:    store,
		events:   events,
		logger:   util.GetLogger(),
		maxBatch: maxBatch,
	}
}

// Sweep releases up to maxBatch expired active quotes, soonest-expired
// first. Each release is guarded on unused and expired, so a quote
// redeemed or released since the scan is skipped, not double-released.
func (sw *Sweeper) Sweep(ctx context.Context, maxBatch int) (*SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "Sweeper.Sweep")
	defer span.End()

	if maxBatch <= 0 {
		maxBatch = sw.maxBatch
	}

	start := time.Now()
	defer func() {
		util.SweepLatency.Observe(time.Since(start).Seconds())
	}()

	ids, err := sw.store.ListExpiredQuoteIDs(ctx, maxBatch)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(ids)}
	for _, id := range ids {
		res, err := sw.store.ReleaseQuote(ctx, id, models.ReleaseReasonExpired, store.GuardBoth)
		if err != nil {
			sw.logger.Error("Failed to release expired quote",
				zap.String("quote_id", id),
				zap.Error(err))
			continue
		}
		if !res.Released {
			continue
		}

		result.Released++
		util.QuotesReleasedTotal.WithLabelValues(models.ReleaseReasonExpired).Inc()

		event := &models.QuoteReleasedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeQuoteReleased,
				Timestamp: time.Now(),
			},
			QuoteID: id,
			Reason:  models.ReleaseReasonExpired,
		}
		if err := sw.events.PublishQuoteReleased(ctx, event); err != nil {
			sw.logger.Error("Failed to publish QuoteReleased event", zap.Error(err))
		}
	}

	if result.Released > 0 {
		sw.logger.Info("Sweep reclaimed expired reservations",
			zap.Int("scanned", result.Scanned),
			zap.Int("released", result.Released))
	}

	return result, nil
}
