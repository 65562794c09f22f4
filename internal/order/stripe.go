package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// ChargeRequest describes one card charge against a host's connected
// processor account.
type ChargeRequest struct {
	AccessToken    string
	Token          string
	Email          string
	AmountCents    int64
	Description    string
	IdempotencyKey string
}

type ChargeResult struct {
	ChargeID   string
	ReceiptURL string
}

// StripeCharger executes charges through Stripe payment intents. Each host
// carries its own access token, so a client is built per request rather
// than held globally.
type StripeCharger struct {
	Timeout time.Duration
}

func NewStripeCharger(timeout time.Duration) *StripeCharger {
	return &StripeCharger{Timeout: timeout}
}

func (c *StripeCharger) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	sc := client.New(req.AccessToken, nil)

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(string(stripe.CurrencyUSD)),
		PaymentMethod:      stripe.String(req.Token),
		Description:        stripe.String(req.Description),
		ReceiptEmail:       stripe.String(req.Email),
		ConfirmationMethod: stripe.String("manual"),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String("card")},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := sc.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &ProcessorError{
			Code:   string(pi.Status),
			Reason: fmt.Sprintf("payment intent %s did not succeed", pi.ID),
		}
	}

	result := &ChargeResult{ChargeID: pi.ID}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		if charge, err := sc.Charges.Get(pi.LatestCharge.ID, nil); err == nil {
			result.ReceiptURL = charge.ReceiptURL
		}
	}
	return result, nil
}

// classifyStripeError turns declines into ProcessorError so the payment path
// records them on the order; everything else stays an infrastructure error.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard {
			return &ProcessorError{Code: string(stripeErr.Code), Reason: stripeErr.Msg}
		}
	}
	return err
}

// Processor fee schedule: 2.9% plus 30 cents per charge.
const (
	feeRate  = 0.029
	feeFixed = 0.30
)

func feeForAmount(amount float64) float64 {
	return round2(amount*feeRate + feeFixed)
}

// grossForNet computes the amount to charge so the host nets the given
// amount after fees.
func grossForNet(net float64) float64 {
	return round2((net + feeFixed) / (1 - feeRate))
}

func round2(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// Cents converts a dollar amount to the integer cents the processor expects.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
