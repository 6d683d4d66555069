package service

import (
	"testing"

	"quote-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestComputeShippingStandard(t *testing.T) {
	calc := NewZoneShippingCalculator()

	quote := calc.ComputeShipping([]models.QuoteItem{
		{ProductID: 1, Quantity: 2, UnitPrice: 100},
	}, "CABA")

	assert.True(t, quote.Shippable)
	assert.Equal(t, "standard", quote.Tier)
	assert.Equal(t, int64(2500), quote.Cost)
	assert.Equal(t, int64(200), quote.Subtotal)
	assert.False(t, quote.Free)
}

func TestComputeShippingFreeThreshold(t *testing.T) {
	calc := NewZoneShippingCalculator()

	quote := calc.ComputeShipping([]models.QuoteItem{
		{ProductID: 1, Quantity: 1, UnitPrice: 90000},
	}, "CABA")

	assert.True(t, quote.Shippable)
	assert.True(t, quote.Free)
	assert.Equal(t, int64(0), quote.Cost)
	assert.Equal(t, "free", quote.Tier)
}

func TestComputeShippingBulkTier(t *testing.T) {
	calc := NewZoneShippingCalculator()

	quote := calc.ComputeShipping([]models.QuoteItem{
		{ProductID: 1, Quantity: 4, UnitPrice: 100},
		{ProductID: 2, Quantity: 3, UnitPrice: 100},
	}, "GBA")

	assert.True(t, quote.Shippable)
	assert.Equal(t, "bulk", quote.Tier)
	assert.Equal(t, int64(6500), quote.Cost)
}

func TestComputeShippingUnknownZone(t *testing.T) {
	calc := NewZoneShippingCalculator()

	quote := calc.ComputeShipping([]models.QuoteItem{
		{ProductID: 1, Quantity: 1, UnitPrice: 100},
	}, "MOON")

	assert.False(t, quote.Shippable)
	assert.Contains(t, quote.Reason, "MOON")
}
