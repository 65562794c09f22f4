package models

// Payment methods. Anything other than MethodStripe is settled manually and
// trusts the caller-supplied amount.
const (
	MethodCash   = "Cash"
	MethodCheck  = "Check"
	MethodStripe = "Stripe"
)

// ZeroTotalPayerID marks orders that were auto-settled because nothing was
// owed; no real payer exists for them.
const ZeroTotalPayerID = "0"

// PaymentInfo carries the fields of a manual mark-paid request.
type PaymentInfo struct {
	PaymentMethod string   `json:"payment_method"`
	CheckNumber   string   `json:"check_number,omitempty"`
	PaidAmount    *float64 `json:"paid_amount,omitempty"`
}

// PaymentPayload carries the fields of a pay request. CheckoutToken and
// CheckoutEmail are only meaningful for processor-backed methods.
type PaymentPayload struct {
	PaidAmount    *float64 `json:"paid_amount,omitempty"`
	CheckNumber   string   `json:"check_number,omitempty"`
	CheckoutToken string   `json:"checkout_token,omitempty"`
	CheckoutEmail string   `json:"checkout_email,omitempty"`
}
