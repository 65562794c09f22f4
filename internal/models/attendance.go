package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const (
	OrientationLead   = "Lead"
	OrientationFollow = "Follow"
)

// Attendance is a person's registration to a host.
//
// Rules:
//   - only one unpaid order at a time; if the attendance owes money there
//     will be an unpaid order
//   - must belong to a host (Event or Organization)
type Attendance struct {
	bun.BaseModel `bun:"table:attendances"`

	ID            string   `bun:"id,pk" json:"id"`
	AttendeeID    string   `bun:"attendee_id,nullzero" json:"attendee_id,omitempty"`
	HostType      HostKind `bun:"host_type,notnull" json:"host_type"`
	HostID        string   `bun:"host_id,notnull" json:"host_id"`
	PackageID     string   `bun:"package_id,nullzero" json:"package_id,omitempty"`
	LevelID       string   `bun:"level_id,nullzero" json:"level_id,omitempty"`
	PricingTierID string   `bun:"pricing_tier_id,nullzero" json:"pricing_tier_id,omitempty"`

	DanceOrientation string `bun:"dance_orientation,nullzero" json:"dance_orientation,omitempty"`

	Metadata AttendanceMetadata `bun:"metadata,type:jsonb" json:"metadata"`

	CheckedInAt *time.Time `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`

	TransferredToName   string     `bun:"transferred_to_name,nullzero" json:"transferred_to_name,omitempty"`
	TransferredToUserID string     `bun:"transferred_to_user_id,nullzero" json:"transferred_to_user_id,omitempty"`
	TransferredAt       *time.Time `bun:"transferred_at,nullzero" json:"transferred_at,omitempty"`
	TransferReason      string     `bun:"transfer_reason,nullzero" json:"transfer_reason,omitempty"`

	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero" json:"updated_at"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// AttendanceMetadata holds registration details that have no column of their
// own: contact info for userless registrations and the selected quantities
// for shirts and multi-quantity line items.
type AttendanceMetadata struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`

	// Shirts: shirt id -> size -> selection.
	Shirts map[string]map[string]ItemSelection `json:"shirts,omitempty"`
	// LineItems: line item id -> selection.
	LineItems map[string]ItemSelection `json:"line_items,omitempty"`
}

type ItemSelection struct {
	Quantity int    `json:"quantity"`
	Color    string `json:"color,omitempty"`
}

func (a *Attendance) Host() HostRef {
	return HostRef{Kind: a.HostType, ID: a.HostID}
}

// CarriesPricingTier reports whether this attendance type participates in
// tiered pricing. Only event registrations do; organization memberships and
// lessons price at current rates.
func (a *Attendance) CarriesPricingTier() bool {
	return a.HostType == HostEvent
}

// TotalQuantityForShirt sums the selected quantity for a shirt across all of
// its sizes.
func (a *Attendance) TotalQuantityForShirt(id string) int {
	total := 0
	for _, sel := range a.Metadata.Shirts[id] {
		total += sel.Quantity
	}
	return total
}

// TotalQuantityForLineItem returns the selected quantity for a
// multi-quantity line item, 0 when nothing was selected.
func (a *Attendance) TotalQuantityForLineItem(id string) int {
	return a.Metadata.LineItems[id].Quantity
}

// AttendeeName resolves the display name: transfer target first, then the
// account holder, then the free-form metadata of a userless registration.
func (a *Attendance) AttendeeName(attendee *User) string {
	if a.TransferredToName != "" {
		return a.TransferredToName
	}
	if attendee != nil {
		return attendee.Name()
	}
	if a.Metadata.FirstName != "" && a.Metadata.LastName != "" {
		return a.Metadata.FirstName + " " + a.Metadata.LastName
	}
	return "Name not given"
}

// AttendeeEmail resolves the contact email, falling back to registration
// metadata for userless registrations.
func (a *Attendance) AttendeeEmail(attendee *User) string {
	if attendee != nil && attendee.Email != "" {
		return attendee.Email
	}
	return strings.TrimSpace(a.Metadata.Email)
}

func (a *Attendance) CheckIn(at time.Time) {
	a.CheckedInAt = &at
}

func (a *Attendance) CheckOut() {
	a.CheckedInAt = nil
}
