package catalog

import (
	"errors"
	"time"

	"regdesk/internal/models"
)

// ErrNoPrice reports that neither tiered nor current pricing is defined for
// an item. Callers decide the fallback policy; the catalog never answers
// with a silent zero.
var ErrNoPrice = errors.New("catalog: no price defined")

// CurrentPrice resolves an item's time-based price: the at-the-door price
// once the event has flipped to at-the-door pricing, else the initial price.
func CurrentPrice(item *models.LineItem, event *models.Event, at time.Time) (float64, error) {
	if event != nil && event.AtTheDoor(at) && item.AtTheDoorPrice != nil {
		return *item.AtTheDoorPrice, nil
	}
	if item.InitialPrice != nil {
		return *item.InitialPrice, nil
	}
	return 0, ErrNoPrice
}

// PriceAtTier resolves an item's price under a pricing tier. Items that opt
// out of tiering (or have no tiered base) fall through to ErrNoPrice.
func PriceAtTier(item *models.LineItem, tier *models.PricingTier) (float64, error) {
	if tier == nil || !item.Tierable() || item.InitialPrice == nil {
		return 0, ErrNoPrice
	}
	return *item.InitialPrice + tier.IncreaseByDollars, nil
}

// ResolvePrice is the catalog's pricing contract: tiered price when a tier is
// supplied and the item participates, else the current price.
func ResolvePrice(item *models.LineItem, tier *models.PricingTier, event *models.Event, at time.Time) (float64, error) {
	if price, err := PriceAtTier(item, tier); err == nil {
		return price, nil
	}
	return CurrentPrice(item, event, at)
}
