package models

import (
	"time"

	"github.com/uptrace/bun"
)

// MembershipRenewal is granted or extended as a side effect of a qualifying
// paid order at an organization. OrderID records which order granted it,
// which is what makes re-processing an order a no-op.
type MembershipRenewal struct {
	bun.BaseModel `bun:"table:membership_renewals"`

	ID                 string     `bun:"id,pk" json:"id"`
	UserID             string     `bun:"user_id,notnull" json:"user_id"`
	MembershipOptionID string     `bun:"membership_option_id,notnull" json:"membership_option_id"`
	OrderID            string     `bun:"order_id,nullzero" json:"order_id,omitempty"`
	StartDate          time.Time  `bun:"start_date,notnull" json:"start_date"`
	ExpiresAt          time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt          time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

func (m *MembershipRenewal) Active(at time.Time) bool {
	return !at.Before(m.StartDate) && at.Before(m.ExpiresAt)
}
