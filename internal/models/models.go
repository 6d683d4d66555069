package models

import (
	"encoding/json"
	"time"
)

// Product represents a catalog product with its live stock count
type Product struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	Active    *bool     `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsActive treats a NULL active flag as sellable
func (p *Product) IsActive() bool {
	return p.Active == nil || *p.Active
}

// QuoteItem is one line of a quote's frozen snapshot
type QuoteItem struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Title     string `json:"title"`
	Category  string `json:"category"`
}

// QuotePayload is the snapshot frozen at issuance and handed to the
// payment provider at redemption
type QuotePayload struct {
	Items        []QuoteItem `json:"items"`
	Zone         string      `json:"zone"`
	Subtotal     int64       `json:"subtotal"`
	ShippingCost int64       `json:"shipping_cost"`
	Total        int64       `json:"total"`
}

// Quote is a time-boxed, price-frozen reservation of inventory
type Quote struct {
	QuoteID      string     `db:"quote_id" json:"quote_id"`
	PayloadJSON  []byte     `db:"payload_json" json:"-"`
	Total        int64      `db:"total" json:"total"`
	Fingerprint  string     `db:"request_fingerprint" json:"fingerprint"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt       *time.Time `db:"used_at" json:"used_at,omitempty"`
	ReleasedAt   *time.Time `db:"released_at" json:"released_at,omitempty"`
	ReleasedFor  *string    `db:"released_reason" json:"released_reason,omitempty"`
	ProviderTxID *string    `db:"provider_transaction_id" json:"provider_transaction_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Payload decodes the frozen snapshot
func (q *Quote) Payload() (*QuotePayload, error) {
	var p QuotePayload
	if err := json.Unmarshal(q.PayloadJSON, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// State reports which of the three quote states the row is in. A
// released_at set on a used quote means the provider call failed after
// redemption; released wins.
func (q *Quote) State() string {
	switch {
	case q.ReleasedAt != nil:
		return QuoteStateReleased
	case q.UsedAt != nil:
		return QuoteStateUsed
	default:
		return QuoteStateActive
	}
}

// Quote states
const (
	QuoteStateActive   = "ACTIVE"
	QuoteStateUsed     = "USED"
	QuoteStateReleased = "RELEASED"
)

// Release reasons
const (
	ReleaseReasonManual         = "manual"
	ReleaseReasonExpired        = "expired"
	ReleaseReasonInvalidPayload = "invalid_payload"
	ReleaseReasonProviderError  = "mp_error"
)
