package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                     string     `bun:"id,pk" json:"id"`
	Name                   string     `bun:"name,notnull" json:"name"`
	StartsAt               time.Time  `bun:"starts_at" json:"starts_at"`
	EndsAt                 time.Time  `bun:"ends_at" json:"ends_at"`
	ShowAtTheDoorPricesAt  *time.Time `bun:"show_at_the_door_prices_at,nullzero" json:"show_at_the_door_prices_at,omitempty"`
	MakeAttendeesPayFees   bool       `bun:"make_attendees_pay_fees,notnull,default:true" json:"make_attendees_pay_fees"`
	AllowDiscounts         bool       `bun:"allow_discounts,notnull,default:true" json:"allow_discounts"`
	AllowCombinedDiscounts bool       `bun:"allow_combined_discounts,notnull,default:true" json:"allow_combined_discounts"`
	PaymentEmail           string     `bun:"payment_email,nullzero" json:"payment_email,omitempty"`
	ContactEmail           string     `bun:"contact_email,nullzero" json:"contact_email,omitempty"`
	CreatedAt              time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	DeletedAt              *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// AtTheDoor reports whether at-the-door pricing is in effect at the given time.
func (e *Event) AtTheDoor(at time.Time) bool {
	return e.ShowAtTheDoorPricesAt != nil && !at.Before(*e.ShowAtTheDoorPricesAt)
}

type Organization struct {
	bun.BaseModel `bun:"table:organizations"`

	ID                   string     `bun:"id,pk" json:"id"`
	Name                 string     `bun:"name,notnull" json:"name"`
	MakeAttendeesPayFees bool       `bun:"make_attendees_pay_fees,notnull,default:true" json:"make_attendees_pay_fees"`
	ContactEmail         string     `bun:"contact_email,nullzero" json:"contact_email,omitempty"`
	CreatedAt            time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	DeletedAt            *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

const IntegrationStripe = "stripe"

// Integration stores a host's connection to an external processor. Config
// carries the processor credential (for Stripe, the connected account's
// access token).
type Integration struct {
	bun.BaseModel `bun:"table:integrations"`

	ID        string            `bun:"id,pk" json:"id"`
	Kind      string            `bun:"kind,notnull" json:"kind"`
	OwnerType HostKind          `bun:"owner_type,notnull" json:"owner_type"`
	OwnerID   string            `bun:"owner_id,notnull" json:"owner_id"`
	Config    map[string]string `bun:"config,type:jsonb" json:"-"`
}

func (i *Integration) AccessToken() string {
	if i == nil || i.Config == nil {
		return ""
	}
	return i.Config["access_token"]
}
