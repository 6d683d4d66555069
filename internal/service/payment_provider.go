package service

import (
	"context"
	"fmt"
	"math/rand"

	"quote-service/internal/models"
	"quote-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MockPaymentProvider simulates the payment provider for local runs
type MockPaymentProvider struct {
	logger      *zap.Logger
	successRate float64
}

// NewMockPaymentProvider creates a provider with the given success rate
func NewMockPaymentProvider(successRate float64) *MockPaymentProvider {
	return &MockPaymentProvider{
		logger:      util.GetLogger(),
		successRate: successRate,
	}
}

// CreateTransaction creates a mock payable transaction
func (p *MockPaymentProvider) CreateTransaction(ctx context.Context, quoteID string, payload *models.QuotePayload) (string, error) {
	_, span := util.StartSpan(ctx, "MockPaymentProvider.CreateTransaction")
	defer span.End()

	util.ProviderAttemptsTotal.Inc()

	if rand.Float64() >= p.successRate {
		util.ProviderFailedTotal.Inc()
		p.logger.Warn("Provider transaction declined",
			zap.String("quote_id", quoteID),
			zap.Int64("total", payload.Total))
		return "", fmt.Errorf("provider declined transaction for quote %s", quoteID)
	}

	txID := fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
	p.logger.Info("Provider transaction created",
		zap.String("quote_id", quoteID),
		zap.String("transaction_id", txID),
		zap.Int64("total", payload.Total))
	return txID, nil
}
