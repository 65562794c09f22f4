package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ItemType string

const (
	ItemPackage          ItemType = "Package"
	ItemShirt            ItemType = "Shirt"
	ItemCompetition      ItemType = "Competition"
	ItemDiscount         ItemType = "Discount"
	ItemRaffleTicket     ItemType = "RaffleTicket"
	ItemLesson           ItemType = "Lesson"
	ItemMembershipOption ItemType = "MembershipOption"
)

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFlat       DiscountKind = "flat"
)

// LineItem is a purchasable or discount-applying catalog entry. All item
// subtypes share one table and are distinguished by ItemType (tagged union
// instead of an inheritance chain).
type LineItem struct {
	bun.BaseModel `bun:"table:line_items"`

	ID       string   `bun:"id,pk" json:"id"`
	HostType HostKind `bun:"host_type,notnull" json:"host_type"`
	HostID   string   `bun:"host_id,notnull" json:"host_id"`
	Name     string   `bun:"name,notnull" json:"name"`
	ItemType ItemType `bun:"item_type,notnull" json:"item_type"`

	// Price is the raw value column, kept as a last-resort fallback when
	// neither tiered nor current pricing resolves.
	Price              *float64 `bun:"price" json:"price,omitempty"`
	InitialPrice       *float64 `bun:"initial_price" json:"initial_price,omitempty"`
	AtTheDoorPrice     *float64 `bun:"at_the_door_price" json:"at_the_door_price,omitempty"`
	IgnorePricingTiers bool     `bun:"ignore_pricing_tiers,notnull,default:false" json:"ignore_pricing_tiers"`

	RegistrationOpensAt  *time.Time `bun:"registration_opens_at,nullzero" json:"registration_opens_at,omitempty"`
	RegistrationClosesAt *time.Time `bun:"registration_closes_at,nullzero" json:"registration_closes_at,omitempty"`
	BecomesAvailableAt   *time.Time `bun:"becomes_available_at,nullzero" json:"becomes_available_at,omitempty"`
	ExpiresAt            *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	InitialStock         int        `bun:"initial_stock,notnull,default:0" json:"initial_stock"`

	// Discount-only columns (ItemType == ItemDiscount).
	DiscountKind        DiscountKind `bun:"discount_kind,nullzero" json:"discount_kind,omitempty"`
	AppliesTo           ItemType     `bun:"applies_to,nullzero" json:"applies_to,omitempty"`
	AllowedNumberOfUses int          `bun:"allowed_number_of_uses,nullzero" json:"allowed_number_of_uses,omitempty"`
	TimesUsed           int          `bun:"times_used,notnull,default:0" json:"times_used"`
	Disabled            bool         `bun:"disabled,notnull,default:false" json:"disabled"`
	RequiresOrientation bool         `bun:"requires_orientation,notnull,default:false" json:"requires_orientation"`
	RequiresPartner     bool         `bun:"requires_partner,notnull,default:false" json:"requires_partner"`

	Metadata  LineItemMetadata `bun:"metadata,type:jsonb" json:"metadata"`
	CreatedAt time.Time        `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time        `bun:"updated_at,nullzero" json:"updated_at"`
	DeletedAt *time.Time       `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

type LineItemMetadata struct {
	// Shirt variants: available sizes / colors and optional per-size pricing.
	Sizes      []string           `json:"sizes,omitempty"`
	Colors     []string           `json:"colors,omitempty"`
	SizePrices map[string]float64 `json:"size_prices,omitempty"`

	// Membership options: how long one renewal lasts.
	DurationMonths int `json:"duration_months,omitempty"`

	// Discounts: marks the organization's member-perk discount, applied
	// automatically to members' unpaid orders.
	ForMembers bool `json:"for_members,omitempty"`
}

// Tierable reports whether this item participates in pricing-tier escalation.
func (l *LineItem) Tierable() bool {
	if l.IgnorePricingTiers {
		return false
	}
	return l.ItemType == ItemPackage || l.ItemType == ItemCompetition
}

// IsStocked reports whether the item can be sold at the given time, based on
// its availability window. A zero window means always available.
func (l *LineItem) IsStocked(at time.Time) bool {
	if l.RegistrationOpensAt != nil && at.Before(*l.RegistrationOpensAt) {
		return false
	}
	if l.BecomesAvailableAt != nil && at.Before(*l.BecomesAvailableAt) {
		return false
	}
	if l.RegistrationClosesAt != nil && at.After(*l.RegistrationClosesAt) {
		return false
	}
	if l.ExpiresAt != nil && at.After(*l.ExpiresAt) {
		return false
	}
	return true
}

// PriceForSize returns the shirt price for a given size, falling back to the
// shirt's initial price when no per-size price is set.
func (l *LineItem) PriceForSize(size string) *float64 {
	if p, ok := l.Metadata.SizePrices[size]; ok {
		return &p
	}
	return l.InitialPrice
}

// UsedUp reports whether a discount has hit its usage cap.
func (l *LineItem) UsedUp() bool {
	return l.AllowedNumberOfUses > 0 && l.TimesUsed >= l.AllowedNumberOfUses
}
