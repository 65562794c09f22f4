package pricing

import (
	"time"

	"regdesk/internal/models"
)

// Resolve selects the active pricing tier for an event: the latest tier
// whose date has passed or whose registrant threshold has been reached,
// tie-broken by latest date. Returns nil when no tier applies, meaning items
// sell at their base price.
func Resolve(tiers []*models.PricingTier, at time.Time, registrants int) *models.PricingTier {
	var active *models.PricingTier

	for _, tier := range tiers {
		if !applies(tier, at, registrants) {
			continue
		}
		if active == nil || tierDate(tier).After(tierDate(active)) {
			active = tier
		}
	}

	return active
}

func applies(tier *models.PricingTier, at time.Time, registrants int) bool {
	if tier.Date != nil && !at.Before(*tier.Date) {
		return true
	}
	if tier.Registrants != nil && registrants >= *tier.Registrants {
		return true
	}
	return false
}

func tierDate(tier *models.PricingTier) time.Time {
	if tier.Date == nil {
		return time.Time{}
	}
	return *tier.Date
}
