package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PricingTier is an ordered price escalation rule for an event. A tier
// activates either on a calendar date or when the registrant count reaches a
// threshold, whichever happens first.
type PricingTier struct {
	bun.BaseModel `bun:"table:pricing_tiers"`

	ID                string     `bun:"id,pk" json:"id"`
	EventID           string     `bun:"event_id,notnull" json:"event_id"`
	IncreaseByDollars float64    `bun:"increase_by_dollars,notnull,default:0" json:"increase_by_dollars"`
	Date              *time.Time `bun:"date,nullzero" json:"date,omitempty"`
	Registrants       *int       `bun:"registrants,nullzero" json:"registrants,omitempty"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}
