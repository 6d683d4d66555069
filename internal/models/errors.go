package models

import (
	"errors"
	"fmt"
)

// Rejection codes
const (
	CodeItemsMissing        = "items_missing"
	CodeProductNotFound     = "product_not_found"
	CodeProductInactive     = "product_inactive"
	CodeInsufficientStock   = "insufficient_stock"
	CodeCannotShip          = "cannot_ship"
	CodeQuoteNotFound       = "quote_not_found"
	CodeQuoteAlreadyUsed    = "quote_already_used"
	CodeQuoteUnavailable    = "quote_unavailable"
	CodeQuoteExpired        = "quote_expired"
	CodeQuotePayloadInvalid = "quote_payload_invalid"
)

// Rejection is an expected business-rule outcome of contention or
// client error, returned as a structured value rather than an opaque
// failure. Infrastructure errors never use this type.
type Rejection struct {
	Code      string `json:"code"`
	ProductID int64  `json:"product_id,omitempty"`
	Available int    `json:"available,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (r *Rejection) Error() string {
	switch {
	case r.Code == CodeInsufficientStock:
		return fmt.Sprintf("%s: product=%d available=%d requested=%d", r.Code, r.ProductID, r.Available, r.Requested)
	case r.ProductID != 0:
		return fmt.Sprintf("%s: product=%d", r.Code, r.ProductID)
	case r.Reason != "":
		return fmt.Sprintf("%s: %s", r.Code, r.Reason)
	default:
		return r.Code
	}
}

// AsRejection unwraps a business rejection from an error chain
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
