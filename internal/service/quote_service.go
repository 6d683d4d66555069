package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"quote-service/internal/models"
	"quote-service/internal/store"
	"quote-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuoteService issues, redeems and releases inventory reservations
type QuoteService struct {
	store    ReservationStore
	shipping ShippingCalculator
	sweeper  *Sweeper
	events   EventPublisher
	logger   *zap.Logger
	ttl      time.Duration
}

// NewQuoteService creates a new quote service
func NewQuoteService(
	store ReservationStore,
	shipping ShippingCalculator,
	sweeper *Sweeper,
	events EventPublisher,
	ttl time.Duration,
) *QuoteService {
	return &QuoteService{
		store:    store,
		shipping: shipping,
		sweeper:  sweeper,
		events:   events,
		logger:   util.GetLogger(),
		ttl:      ttl,
	}
}

// CartItemRequest is one raw cart line
type CartItemRequest struct {
	ProductID int64 `json:"id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// IssueQuoteRequest represents a request to reserve a cart
type IssueQuoteRequest struct {
	Items []CartItemRequest `json:"items"`
	Zone  string            `json:"zone" binding:"required"`
}

// IssueQuoteResponse represents the reservation handed to the client
type IssueQuoteResponse struct {
	QuoteID      string             `json:"quote_id"`
	ExpiresAt    time.Time          `json:"expires_at"`
	Items        []models.QuoteItem `json:"items"`
	Subtotal     int64              `json:"subtotal"`
	ShippingCost int64              `json:"shipping_cost"`
	Total        int64              `json:"total"`
}

// IssueQuote validates a cart against current stock and price, freezes
// a snapshot and atomically reserves the inventory behind a TTL-bound
// quote. The per-item pre-check gives fast, specific errors for the
// common case; the conditional decrement inside ReserveQuote is the
// actual correctness guarantee and may still fail after the pre-check
// passed, reported with the same taxonomy.
func (s *QuoteService) IssueQuote(ctx context.Context, req *IssueQuoteRequest) (*IssueQuoteResponse, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.IssueQuote")
	defer span.End()

	items := dedupItems(req.Items)
	if len(items) == 0 {
		util.QuotesRejectedTotal.WithLabelValues("issue", models.CodeItemsMissing).Inc()
		return nil, &models.Rejection{Code: models.CodeItemsMissing}
	}
	for _, item := range items {
		// Positivity is enforced here, not just at the transport layer:
		// a negative quantity would pass the stock comparisons and
		// increment stock on reserve.
		if item.Quantity <= 0 {
			util.QuotesRejectedTotal.WithLabelValues("issue", models.CodeItemsMissing).Inc()
			return nil, &models.Rejection{Code: models.CodeItemsMissing, ProductID: item.ProductID, Requested: item.Quantity}
		}
	}

	if _, err := s.sweeper.Sweep(ctx, 0); err != nil {
		s.logger.Warn("Opportunistic sweep failed before issuance", zap.Error(err))
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	quoteItems := make([]models.QuoteItem, 0, len(items))
	var subtotal int64
	for _, item := range items {
		product, ok := productMap[item.ProductID]
		if !ok {
			util.QuotesRejectedTotal.WithLabelValues("issue", models.CodeProductNotFound).Inc()
			return nil, &models.Rejection{Code: models.CodeProductNotFound, ProductID: item.ProductID}
		}
		if !product.IsActive() {
			util.QuotesRejectedTotal.WithLabelValues("issue", models.CodeProductInactive).Inc()
			return nil, &models.Rejection{Code: models.CodeProductInactive, ProductID: item.ProductID}
		}
		if product.Stock < item.Quantity {
			util.QuotesRejectedTotal.WithLabelValues("issue", models.CodeInsufficientStock).Inc()
			return nil, &models.Rejection{
				Code:      models.CodeInsufficientStock,
				ProductID: item.ProductID,
				Available: product.Stock,
				Requested: item.Quantity,
			}
		}

		quoteItems = append(quoteItems, models.QuoteItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
			Title:     product.Name,
			Category:  product.Category,
		})
		subtotal += product.Price * int64(item.Quantity)
	}

	shipping := s.shipping.ComputeShipping(quoteItems, req.Zone)
	if !shipping.Shippable {
		util.QuotesRejectedTotal.WithLabelValues("issue", models.CodeCannotShip).Inc()
		return nil, &models.Rejection{Code: models.CodeCannotShip, Reason: shipping.Reason}
	}

	total := subtotal + shipping.Cost
	payload := &models.QuotePayload{
		Items:        quoteItems,
		Zone:         req.Zone,
		Subtotal:     subtotal,
		ShippingCost: shipping.Cost,
		Total:        total,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quote payload: %w", err)
	}

	quote := &models.Quote{
		QuoteID:     uuid.New().String(),
		PayloadJSON: payloadJSON,
		Total:       total,
		Fingerprint: fingerprint(payloadJSON),
		ExpiresAt:   time.Now().Add(s.ttl),
	}

	start := time.Now()
	err = s.store.ReserveQuote(ctx, quote, quoteItems)
	util.ReserveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if rejection, ok := models.AsRejection(err); ok {
			// Stock vanished between the read and the atomic decrement.
			util.QuotesRejectedTotal.WithLabelValues("reserve", rejection.Code).Inc()
			return nil, rejection
		}
		return nil, fmt.Errorf("failed to reserve quote: %w", err)
	}

	util.QuotesIssuedTotal.Inc()
	s.logger.Info("Quote issued",
		zap.String("quote_id", quote.QuoteID),
		zap.Int64("total", total),
		zap.Time("expires_at", quote.ExpiresAt))

	event := &models.QuoteIssuedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeQuoteIssued,
			Timestamp: time.Now(),
		},
		QuoteID:   quote.QuoteID,
		Total:     total,
		ExpiresAt: quote.ExpiresAt,
		Items:     quoteItems,
	}
	if err := s.events.PublishQuoteIssued(ctx, event); err != nil {
		s.logger.Error("Failed to publish QuoteIssued event", zap.Error(err))
	}

	return &IssueQuoteResponse{
		QuoteID:      quote.QuoteID,
		ExpiresAt:    quote.ExpiresAt,
		Items:        quoteItems,
		Subtotal:     subtotal,
		ShippingCost: shipping.Cost,
		Total:        total,
	}, nil
}

// RedeemQuote consumes an active, unexpired quote exactly once and
// returns its frozen payload for the payment provider call. A corrupt
// payload triggers an automatic release so the reserved stock is not
// stranded behind an unusable quote.
func (s *QuoteService) RedeemQuote(ctx context.Context, quoteID string) (*models.Quote, *models.QuotePayload, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.RedeemQuote")
	defer span.End()

	if _, err := s.sweeper.Sweep(ctx, 0); err != nil {
		s.logger.Warn("Opportunistic sweep failed before redemption", zap.Error(err))
	}

	quote, err := s.store.MarkQuoteUsed(ctx, quoteID)
	if err != nil {
		if rejection, ok := models.AsRejection(err); ok {
			util.QuotesRejectedTotal.WithLabelValues("redeem", rejection.Code).Inc()
			return nil, nil, rejection
		}
		return nil, nil, fmt.Errorf("failed to redeem quote: %w", err)
	}

	payload, err := quote.Payload()
	if err != nil {
		s.logger.Error("Quote payload is corrupt, releasing reservation",
			zap.String("quote_id", quoteID),
			zap.Error(err))
		if _, relErr := s.Release(ctx, quoteID, models.ReleaseReasonInvalidPayload, store.GuardNone); relErr != nil {
			s.logger.Error("Failed to release quote with corrupt payload",
				zap.String("quote_id", quoteID),
				zap.Error(relErr))
		}
		util.QuotesRejectedTotal.WithLabelValues("redeem", models.CodeQuotePayloadInvalid).Inc()
		return nil, nil, &models.Rejection{Code: models.CodeQuotePayloadInvalid}
	}

	util.QuotesRedeemedTotal.Inc()
	s.logger.Info("Quote redeemed",
		zap.String("quote_id", quoteID),
		zap.Int64("total", quote.Total))

	event := &models.QuoteRedeemedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeQuoteRedeemed,
			Timestamp: time.Now(),
		},
		QuoteID: quoteID,
		Total:   quote.Total,
	}
	if err := s.events.PublishQuoteRedeemed(ctx, event); err != nil {
		s.logger.Error("Failed to publish QuoteRedeemed event", zap.Error(err))
	}

	return quote, payload, nil
}

// Release returns a quote's reserved stock to availability and marks
// it terminal. Idempotent; only the first effective call restores
// stock.
func (s *QuoteService) Release(ctx context.Context, quoteID, reason string, guard store.ReleaseGuard) (*store.ReleaseResult, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.Release")
	defer span.End()

	result, err := s.store.ReleaseQuote(ctx, quoteID, reason, guard)
	if err != nil {
		return nil, fmt.Errorf("failed to release quote: %w", err)
	}

	if result.Released {
		util.QuotesReleasedTotal.WithLabelValues(reason).Inc()
		s.logger.Info("Quote released",
			zap.String("quote_id", quoteID),
			zap.String("reason", reason))

		event := &models.QuoteReleasedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeQuoteReleased,
				Timestamp: time.Now(),
			},
			QuoteID: quoteID,
			Reason:  reason,
		}
		if err := s.events.PublishQuoteReleased(ctx, event); err != nil {
			s.logger.Error("Failed to publish QuoteReleased event", zap.Error(err))
		}
	}

	return result, nil
}

// GetQuote retrieves a quote for the audit-trail view
func (s *QuoteService) GetQuote(ctx context.Context, quoteID string) (*models.Quote, error) {
	return s.store.GetQuote(ctx, quoteID)
}

// RecordProviderTransaction persists the provider transaction created
// for a redeemed quote
func (s *QuoteService) RecordProviderTransaction(ctx context.Context, quoteID, txID string) error {
	return s.store.SetProviderTransactionID(ctx, quoteID, txID)
}

// dedupItems merges duplicate product lines by summing quantities,
// preserving first-seen order
func dedupItems(items []CartItemRequest) []CartItemRequest {
	index := make(map[int64]int, len(items))
	deduped := make([]CartItemRequest, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			deduped[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(deduped)
		deduped = append(deduped, item)
	}
	return deduped
}

// fingerprint hashes the frozen payload. Diagnostic only; uniqueness
// is not enforced on it.
func fingerprint(payloadJSON []byte) string {
	sum := sha256.Sum256(payloadJSON)
	return hex.EncodeToString(sum[:])
}
