package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Order is one invoice for one attendance. Line item prices are snapshotted
// at creation; once an order is paid it is a frozen financial record and
// catalog changes never touch it.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string   `bun:"id,pk" json:"id"`
	HostType      HostKind `bun:"host_type,notnull" json:"host_type"`
	HostID        string   `bun:"host_id,notnull" json:"host_id"`
	AttendanceID  string   `bun:"attendance_id,notnull" json:"attendance_id"`
	UserID        string   `bun:"user_id,nullzero" json:"user_id,omitempty"`
	PricingTierID string   `bun:"pricing_tier_id,nullzero" json:"pricing_tier_id,omitempty"`

	Paid              bool     `bun:"paid,notnull,default:false" json:"paid"`
	PaidAmount        *float64 `bun:"paid_amount" json:"paid_amount,omitempty"`
	NetAmountReceived float64  `bun:"net_amount_received,notnull,default:0" json:"net_amount_received"`
	TotalFeeAmount    float64  `bun:"total_fee_amount,notnull,default:0" json:"total_fee_amount"`
	PaymentMethod     string   `bun:"payment_method,notnull,default:'Cash'" json:"payment_method"`
	PayerID           string   `bun:"payer_id,nullzero" json:"payer_id,omitempty"`
	IsFeeAbsorbed     bool     `bun:"is_fee_absorbed,notnull,default:true" json:"is_fee_absorbed"`

	PaymentReceivedAt *time.Time    `bun:"payment_received_at,nullzero" json:"payment_received_at,omitempty"`
	Metadata          OrderMetadata `bun:"metadata,type:jsonb" json:"metadata"`

	// LockVersion implements the optimistic write check on updates.
	LockVersion int64 `bun:"lock_version,notnull,default:0" json:"-"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`

	LineItems []*OrderLineItem `bun:"rel:has-many,join:id=order_id" json:"line_items"`
}

// OrderMetadata carries payment bookkeeping that has no column of its own.
type OrderMetadata struct {
	Errors      []string          `json:"errors,omitempty"`
	CheckNumber string            `json:"check_number,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

// OrderLineItem owns the price/quantity snapshot of a line item at purchase
// time. It is the only record of what was actually charged; the catalog item
// may change price afterward without effect.
type OrderLineItem struct {
	bun.BaseModel `bun:"table:order_line_items"`

	ID           string   `bun:"id,pk" json:"id"`
	OrderID      string   `bun:"order_id,notnull" json:"order_id"`
	LineItemID   string   `bun:"line_item_id,notnull" json:"line_item_id"`
	LineItemType ItemType `bun:"line_item_type,notnull" json:"line_item_type"`
	Name         string   `bun:"name,nullzero" json:"name,omitempty"`
	Price        float64  `bun:"price,notnull,default:0" json:"price"`
	Quantity     int      `bun:"quantity,notnull,default:1" json:"quantity"`

	Size             string `bun:"size,nullzero" json:"size,omitempty"`
	Color            string `bun:"color,nullzero" json:"color,omitempty"`
	DanceOrientation string `bun:"dance_orientation,nullzero" json:"dance_orientation,omitempty"`
	PartnerName      string `bun:"partner_name,nullzero" json:"partner_name,omitempty"`

	// Discount snapshots, so totals stay computable from the order alone.
	DiscountKind DiscountKind `bun:"discount_kind,nullzero" json:"discount_kind,omitempty"`
	AppliesTo    ItemType     `bun:"applies_to,nullzero" json:"applies_to,omitempty"`

	PickedUpAt *time.Time `bun:"picked_up_at,nullzero" json:"picked_up_at,omitempty"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (o *Order) Host() HostRef {
	return HostRef{Kind: o.HostType, ID: o.HostID}
}

func (o *Order) BelongsToOrganization() bool {
	return o.HostType == HostOrganization
}

// AddItem snapshots a catalog item onto the order and returns the new line
// item so the caller can set variant fields.
func (o *Order) AddItem(item *LineItem, price float64, quantity int) *OrderLineItem {
	oli := &OrderLineItem{
		OrderID:      o.ID,
		LineItemID:   item.ID,
		LineItemType: item.ItemType,
		Name:         item.Name,
		Price:        price,
		Quantity:     quantity,
	}
	if item.ItemType == ItemDiscount {
		oli.DiscountKind = item.DiscountKind
		oli.AppliesTo = item.AppliesTo
	}
	o.LineItems = append(o.LineItems, oli)
	return oli
}

// SubTotal is the sum of all non-discount line items.
func (o *Order) SubTotal() float64 {
	total := 0.0
	for _, li := range o.LineItems {
		if li.LineItemType == ItemDiscount {
			continue
		}
		total += li.Price * float64(li.Quantity)
	}
	return total
}

// DiscountAmount computes the total reduction from discount line items. A
// percentage discount applies to the subtotal of the items in its scope; a
// flat discount is capped at that subtotal.
func (o *Order) DiscountAmount() float64 {
	total := 0.0
	for _, li := range o.LineItems {
		if li.LineItemType != ItemDiscount {
			continue
		}
		scoped := o.scopedSubTotal(li.AppliesTo)
		amount := 0.0
		switch li.DiscountKind {
		case DiscountPercentage:
			amount = scoped * li.Price / 100
		default:
			amount = li.Price * float64(li.Quantity)
		}
		if amount > scoped {
			amount = scoped
		}
		total += amount
	}
	return total
}

func (o *Order) scopedSubTotal(scope ItemType) float64 {
	if scope == "" {
		return o.SubTotal()
	}
	total := 0.0
	for _, li := range o.LineItems {
		if li.LineItemType == scope {
			total += li.Price * float64(li.Quantity)
		}
	}
	return total
}

// Total is what the order charges: subtotal less discounts, never negative.
func (o *Order) Total() float64 {
	total := o.SubTotal() - o.DiscountAmount()
	if total < 0 {
		return 0
	}
	return total
}

// Owes returns the outstanding balance on this order.
func (o *Order) Owes() float64 {
	if o.Paid {
		return 0
	}
	return o.Total()
}

// CheckPaidStatus normalizes the paid flag before every persist. A zero-total
// order is auto-settled with a zero paid amount; an order that owes money
// with no paid amount recorded is unpaid, whatever the flag says.
func (o *Order) CheckPaidStatus() {
	total := o.Total()

	if total == 0 {
		o.PayerID = ZeroTotalPayerID
		o.Paid = true
		if o.PaidAmount == nil {
			zero := 0.0
			o.PaidAmount = &zero
		}
	} else if o.PaidAmount == nil {
		o.Paid = false
	}

	// Guard against a partial write that flagged paid without an amount.
	if o.Paid && o.PaidAmount == nil && total == 0 {
		o.Paid = false
	}
}

func (o *Order) PaymentErrors() []string {
	return o.Metadata.Errors
}

func (o *Order) HasPaymentErrors() bool {
	return len(o.Metadata.Errors) > 0
}

func (o *Order) AddPaymentError(msg string) {
	o.Metadata.Errors = append(o.Metadata.Errors, msg)
}

// ClearPaymentErrors drops errors recorded by earlier payment attempts so the
// error list always describes the latest attempt.
func (o *Order) ClearPaymentErrors() {
	o.Metadata.Errors = nil
}

func (o *Order) SetCheckNumber(number string) {
	o.Metadata.CheckNumber = number
}

func (o *Order) CheckNumber() string {
	return o.Metadata.CheckNumber
}

// SetPaymentDetails records processor details (charge reference and the
// like) on the order metadata.
func (o *Order) SetPaymentDetails(details map[string]string) {
	if o.Metadata.Details == nil {
		o.Metadata.Details = map[string]string{}
	}
	for k, v := range details {
		o.Metadata.Details[k] = v
	}
}

// UsesDiscount reports whether the order already carries the given discount.
func (o *Order) UsesDiscount(discountID string) bool {
	for _, li := range o.LineItems {
		if li.LineItemType == ItemDiscount && li.LineItemID == discountID {
			return true
		}
	}
	return false
}
