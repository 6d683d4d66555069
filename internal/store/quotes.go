package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quote-service/internal/models"

	"github.com/jmoiron/sqlx"
)

var errNotReleasable = errors.New("quote not releasable")

// ReleaseResult reports the outcome of a release attempt. Released is
// false for every no-op outcome; Reason then names which one.
type ReleaseResult struct {
	Released bool   `json:"released"`
	Reason   string `json:"reason,omitempty"`
}

// No-op release outcomes
const (
	ReleaseSkipNotFound        = "quote_not_found"
	ReleaseSkipAlreadyReleased = "already_released"
	ReleaseSkipAlreadyUsed     = "already_used"
	ReleaseSkipNotExpired      = "not_expired"
	ReleaseSkipNotReleasable   = "not_releasable"
)

// ReserveQuote decrements stock for every item and inserts the quote
// row in a single transaction. Each decrement is a conditional update
// guarded by current stock and the active flag; the first item that
// affects zero rows aborts the whole transaction, undoing decrements
// already applied for earlier items. Reservation is all-or-nothing
// across the cart.
func (s *Store) ReserveQuote(ctx context.Context, quote *models.Quote, items []models.QuoteItem) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, item := range items {
			res, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock - $1
				WHERE id = $2
				  AND stock >= $1
				  AND (active IS NULL OR active = TRUE)`,
				item.Quantity, item.ProductID)
			if err != nil {
				return fmt.Errorf("failed to reserve stock for product %d: %w", item.ProductID, err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
			if affected == 0 {
				return s.classifyReserveFailure(ctx, tx, item)
			}
		}

		query := `
			INSERT INTO checkout_quotes
				(quote_id, payload_json, total, request_fingerprint, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`

		if err := tx.GetContext(ctx, &quote.CreatedAt, query,
			quote.QuoteID, quote.PayloadJSON, quote.Total, quote.Fingerprint, quote.ExpiresAt); err != nil {
			return fmt.Errorf("failed to insert quote: %w", err)
		}

		return nil
	})
}

// classifyReserveFailure runs a read-only diagnostic inside the same
// transaction to explain why a conditional decrement matched nothing.
// The caller rolls back regardless of the classification.
func (s *Store) classifyReserveFailure(ctx context.Context, tx *sqlx.Tx, item models.QuoteItem) error {
	var product models.Product
	err := tx.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1", item.ProductID)
	if err == sql.ErrNoRows {
		return &models.Rejection{Code: models.CodeProductNotFound, ProductID: item.ProductID}
	}
	if err != nil {
		return fmt.Errorf("failed to classify reservation failure for product %d: %w", item.ProductID, err)
	}

	if !product.IsActive() {
		return &models.Rejection{Code: models.CodeProductInactive, ProductID: item.ProductID}
	}

	return &models.Rejection{
		Code:      models.CodeInsufficientStock,
		ProductID: item.ProductID,
		Available: product.Stock,
		Requested: item.Quantity,
	}
}

// MarkQuoteUsed consumes an active, unexpired quote exactly once. The
// state check and the mutation are one conditional UPDATE, so two
// concurrent redemptions can never both succeed. When the update
// matches nothing the row is re-read to classify the rejection.
func (s *Store) MarkQuoteUsed(ctx context.Context, quoteID string) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.GetContext(ctx, &quote, `
		UPDATE checkout_quotes
		SET used_at = NOW()
		WHERE quote_id = $1
		  AND used_at IS NULL
		  AND released_at IS NULL
		  AND expires_at >= NOW()
		RETURNING *`, quoteID)
	if err == nil {
		return &quote, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to mark quote used: %w", err)
	}

	return nil, s.classifyRedeemFailure(ctx, quoteID)
}

func (s *Store) classifyRedeemFailure(ctx context.Context, quoteID string) error {
	quote, err := s.GetQuote(ctx, quoteID)
	if err != nil {
		return err
	}
	if quote == nil {
		return &models.Rejection{Code: models.CodeQuoteNotFound}
	}

	switch {
	case quote.ReleasedAt != nil:
		reason := ""
		if quote.ReleasedFor != nil {
			reason = *quote.ReleasedFor
		}
		return &models.Rejection{Code: models.CodeQuoteUnavailable, Reason: reason}
	case quote.UsedAt != nil:
		return &models.Rejection{Code: models.CodeQuoteAlreadyUsed}
	default:
		return &models.Rejection{Code: models.CodeQuoteExpired}
	}
}

// ReleaseQuote marks a quote released and restores its reserved stock.
// The quote row is locked and inspected first so every no-op outcome
// is reported precisely, then the update re-asserts the guard in its
// WHERE clause against a concurrent releaser winning the race. The
// stock increments are unconditional: only one release can ever
// succeed per quote. Safe to call any number of times.
func (s *Store) ReleaseQuote(ctx context.Context, quoteID, reason string, guard ReleaseGuard) (*ReleaseResult, error) {
	result := &ReleaseResult{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var quote models.Quote
		err := tx.GetContext(ctx, &quote,
			"SELECT * FROM checkout_quotes WHERE quote_id = $1 FOR UPDATE", quoteID)
		if err == sql.ErrNoRows {
			result.Reason = ReleaseSkipNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock quote: %w", err)
		}

		if quote.ReleasedAt != nil {
			result.Reason = ReleaseSkipAlreadyReleased
			return nil
		}
		if guard.RequireUnused() && quote.UsedAt != nil {
			result.Reason = ReleaseSkipAlreadyUsed
			return nil
		}
		if guard.RequireExpired() {
			var expired bool
			if err := tx.GetContext(ctx, &expired,
				"SELECT expires_at < NOW() FROM checkout_quotes WHERE quote_id = $1", quoteID); err != nil {
				return fmt.Errorf("failed to check expiry: %w", err)
			}
			if !expired {
				result.Reason = ReleaseSkipNotExpired
				return nil
			}
		}

		// Decode before mutating: a corrupt payload must not abort the
		// release, or the row would match every expiry scan forever. It
		// only skips the restock, whose quantities are unknowable.
		payload, payloadErr := quote.Payload()

		res, err := tx.ExecContext(ctx, `
			UPDATE checkout_quotes
			SET released_at = NOW(), released_reason = $1
			WHERE quote_id = $2
			  AND released_at IS NULL`+guard.Predicate(),
			reason, quoteID)
		if err != nil {
			return fmt.Errorf("failed to release quote: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if affected == 0 {
			return errNotReleasable
		}

		if payloadErr != nil {
			result.Released = true
			return nil
		}

		for _, item := range payload.Items {
			if _, err := tx.ExecContext(ctx,
				"UPDATE products SET stock = stock + $1 WHERE id = $2",
				item.Quantity, item.ProductID); err != nil {
				return fmt.Errorf("failed to restore stock for product %d: %w", item.ProductID, err)
			}
		}

		result.Released = true
		return nil
	})

	if err == errNotReleasable {
		return &ReleaseResult{Reason: ReleaseSkipNotReleasable}, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetQuote retrieves a quote by ID, nil when absent
func (s *Store) GetQuote(ctx context.Context, quoteID string) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.GetContext(ctx, &quote,
		"SELECT * FROM checkout_quotes WHERE quote_id = $1", quoteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// ListExpiredQuoteIDs returns up to limit active quotes whose window
// has lapsed, soonest-expired first
func (s *Store) ListExpiredQuoteIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT quote_id FROM checkout_quotes
		WHERE released_at IS NULL
		  AND used_at IS NULL
		  AND expires_at < NOW()
		ORDER BY expires_at ASC
		LIMIT $1`, limit)
	return ids, err
}

// SetProviderTransactionID records the provider transaction created
// for a redeemed quote. Write-once.
func (s *Store) SetProviderTransactionID(ctx context.Context, quoteID, txID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE checkout_quotes
		SET provider_transaction_id = $1
		WHERE quote_id = $2 AND provider_transaction_id IS NULL`,
		txID, quoteID)
	return err
}
