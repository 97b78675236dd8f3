/*
promotion.go - Promotion eligibility filter

PURPOSE:
  Pricing policy consulted before reservation. While a promotion window is
  open for an event, the only legitimate purchase is a tier priced strictly
  below the event's nominal price (the cheapest tier price recorded at
  event creation). With no active promotion, any tier is eligible.

  The check is advisory pricing policy, not inventory-affecting: it runs
  before any reservation and mutates nothing.
*/
package ticketing

import (
	"context"
	"time"
)

// PromotionFilter evaluates purchase-price legitimacy against active
// promotion windows.
type PromotionFilter struct {
	store Store
}

func NewPromotionFilter(store Store) *PromotionFilter {
	return &PromotionFilter{store: store}
}

// CheckEligibility returns nil when the candidate tier price is a
// legitimate purchase for the event at the given time, and a
// PromotionPriceError when a non-discounted tier is selected during an
// active promotion window.
func (f *PromotionFilter) CheckEligibility(ctx context.Context, event *Event, tier *TicketTier, at time.Time) error {
	promos, err := f.store.ActivePromotions(ctx, event.ID, at)
	if err != nil {
		return err
	}
	if len(promos) == 0 {
		return nil
	}

	if tier.Price >= event.NominalPrice {
		return &PromotionPriceError{
			EventID:      event.ID,
			TierID:       tier.ID,
			TierPrice:    tier.Price,
			NominalPrice: event.NominalPrice,
		}
	}
	return nil
}
