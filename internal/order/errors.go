package order

import (
	"errors"
	"fmt"

	"regdesk/internal/order/db"
)

// ErrPricingUnresolved reports that the catalog could not price an item and
// no fallback applied. The order is not built.
var ErrPricingUnresolved = errors.New("order: pricing unresolved")

// ErrConflict mirrors the repository's optimistic-concurrency failure so
// callers can retry the whole operation against fresh state.
var ErrConflict = db.ErrConflict

// ErrAttendanceBusy reports that another settlement operation holds the
// attendance lock right now.
var ErrAttendanceBusy = errors.New("order: attendance is being settled by another request")

// ErrBalanceOutstanding blocks check-in while the attendance owes money.
var ErrBalanceOutstanding = errors.New("order: balance outstanding")

// Validation error messages attached to an order when a card payment is
// missing required processor information. The wording is load-bearing:
// clients match on it.
const (
	ErrMsgNoCheckoutInfo = "No Stripe Checkout Information Found"
	ErrMsgNoIntegration  = "No Stripe Integration Present"
	ErrMsgNoAccessToken  = "No Stripe Access Token Present"
)

// ProcessorError is a card decline or processor failure. It is attached to
// the order's error list, never raised past the payment boundary.
type ProcessorError struct {
	Code   string
	Reason string
}

func (e *ProcessorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return e.Reason
}
