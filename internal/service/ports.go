package service

import (
	"context"

	"quote-service/internal/models"
	"quote-service/internal/store"
)

// ReservationStore is the persistence surface the quote engine
// consumes. *store.Store satisfies it; tests substitute mocks.
type ReservationStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	ReserveQuote(ctx context.Context, quote *models.Quote, items []models.QuoteItem) error
	MarkQuoteUsed(ctx context.Context, quoteID string) (*models.Quote, error)
	ReleaseQuote(ctx context.Context, quoteID, reason string, guard store.ReleaseGuard) (*store.ReleaseResult, error)
	GetQuote(ctx context.Context, quoteID string) (*models.Quote, error)
	ListExpiredQuoteIDs(ctx context.Context, limit int) ([]string, error)
	SetProviderTransactionID(ctx context.Context, quoteID, txID string) error
}

// EventPublisher publishes quote lifecycle events. Publishing is
// best-effort everywhere; failures are logged and never abort the
// operation that produced the event.
type EventPublisher interface {
	PublishQuoteIssued(ctx context.Context, event *models.QuoteIssuedEvent) error
	PublishQuoteRedeemed(ctx context.Context, event *models.QuoteRedeemedEvent) error
	PublishQuoteReleased(ctx context.Context, event *models.QuoteReleasedEvent) error
}

// RateLimiter gates how often a client identity may attempt an
// operation. Injected so the engine never touches process-wide state.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// PaymentProvider creates a payable transaction from a redeemed
// quote's frozen payload
type PaymentProvider interface {
	CreateTransaction(ctx context.Context, quoteID string, payload *models.QuotePayload) (string, error)
}
