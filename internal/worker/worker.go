package worker

import (
	"context"
	"log"

	"quote-service/internal/broker"
	"quote-service/internal/models"
	"quote-service/internal/store"
)

// QuoteReleaser releases a quote's reservation back to stock
type QuoteReleaser interface {
	Release(ctx context.Context, quoteID, reason string, guard store.ReleaseGuard) (*store.ReleaseResult, error)
}

// PaymentEventsWorker listens for asynchronous provider failure
// notifications and releases the affected quote so a transaction the
// provider later rejects does not strand reserved stock behind a used
// quote.
type PaymentEventsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewPaymentEventsWorker creates a new payment events worker
func NewPaymentEventsWorker(consumer *broker.Consumer, releaser QuoteReleaser) *PaymentEventsWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentFailed(func(ctx context.Context, event *models.PaymentFailedEvent) error {
		result, err := releaser.Release(ctx, event.QuoteID, models.ReleaseReasonProviderError, store.GuardNone)
		if err != nil {
			return err
		}
		if !result.Released {
			log.Printf("Provider failure release skipped: quote=%s reason=%s", event.QuoteID, result.Reason)
		}
		return nil
	})

	return &PaymentEventsWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *PaymentEventsWorker) Start(ctx context.Context) error {
	log.Println("Starting payment events worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PaymentEventsWorker) Stop() error {
	log.Println("Stopping payment events worker...")
	return w.consumer.Close()
}
