package service

import (
	"fmt"

	"quote-service/internal/models"
)

// ShippingQuote is the result of a shipping computation
type ShippingQuote struct {
	Shippable bool   `json:"shippable"`
	Cost      int64  `json:"cost"`
	Tier      string `json:"tier"`
	Free      bool   `json:"free"`
	Subtotal  int64  `json:"subtotal"`
	Reason    string `json:"reason,omitempty"`
}

// ShippingCalculator computes shipping cost for a priced item list
// and a destination zone
type ShippingCalculator interface {
	ComputeShipping(items []models.QuoteItem, zone string) ShippingQuote
}

type zoneRate struct {
	standardCost int64
	bulkCost     int64
	freeOver     int64
}

// ZoneShippingCalculator prices shipping from a static zone table.
// Carts at or above a zone's free threshold ship free; carts past the
// bulk quantity cutoff pay the bulk rate.
type ZoneShippingCalculator struct {
	rates        map[string]zoneRate
	bulkQuantity int
}

// NewZoneShippingCalculator creates a calculator with the default rates
func NewZoneShippingCalculator() *ZoneShippingCalculator {
	return &ZoneShippingCalculator{
		rates: map[string]zoneRate{
			"CABA":     {standardCost: 2500, bulkCost: 4500, freeOver: 80000},
			"GBA":      {standardCost: 3900, bulkCost: 6500, freeOver: 100000},
			"INTERIOR": {standardCost: 6900, bulkCost: 11000, freeOver: 150000},
		},
		bulkQuantity: 6,
	}
}

// ComputeShipping computes cost and tier for the given zone
func (c *ZoneShippingCalculator) ComputeShipping(items []models.QuoteItem, zone string) ShippingQuote {
	rate, ok := c.rates[zone]
	if !ok {
		return ShippingQuote{
			Shippable: false,
			Reason:    fmt.Sprintf("no delivery coverage for zone %q", zone),
		}
	}

	var subtotal int64
	var units int
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
		units += item.Quantity
	}

	if subtotal >= rate.freeOver {
		return ShippingQuote{Shippable: true, Cost: 0, Tier: "free", Free: true, Subtotal: subtotal}
	}

	if units >= c.bulkQuantity {
		return ShippingQuote{Shippable: true, Cost: rate.bulkCost, Tier: "bulk", Subtotal: subtotal}
	}

	return ShippingQuote{Shippable: true, Cost: rate.standardCost, Tier: "standard", Subtotal: subtotal}
}
