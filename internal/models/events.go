package models

import "time"

// Event types
const (
	EventTypeQuoteIssued   = "QUOTE_ISSUED"
	EventTypeQuoteRedeemed = "QUOTE_REDEEMED"
	EventTypeQuoteReleased = "QUOTE_RELEASED"
	EventTypePaymentFailed = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// QuoteIssuedEvent published when a reservation is created
type QuoteIssuedEvent struct {
	BaseEvent
	QuoteID   string      `json:"quote_id"`
	Total     int64       `json:"total"`
	ExpiresAt time.Time   `json:"expires_at"`
	Items     []QuoteItem `json:"items"`
}

// QuoteRedeemedEvent published when a quote is consumed
type QuoteRedeemedEvent struct {
	BaseEvent
	QuoteID string `json:"quote_id"`
	Total   int64  `json:"total"`
}

// QuoteReleasedEvent published when a reservation is returned to stock
type QuoteReleasedEvent struct {
	BaseEvent
	QuoteID string `json:"quote_id"`
	Reason  string `json:"reason"`
}

// PaymentFailedEvent published by the payment provider integration when
// a transaction could not be created for a redeemed quote
type PaymentFailedEvent struct {
	BaseEvent
	QuoteID string `json:"quote_id"`
	Reason  string `json:"reason"`
}
