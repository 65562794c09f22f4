package order

import (
	"context"
	"errors"
	"fmt"

	"regdesk/internal/models"
)

// Pay applies a payment to a single order. An already-paid order is returned
// untouched; paying is idempotent at this boundary.
//
// Manual methods trust the caller. Card payments go through the host's
// processor integration; missing checkout information never raises, it is
// recorded on the order's error list so the caller can show it. The returned
// effects are only non-empty when the order actually flipped to paid.
func (s *OrderService) Pay(ctx context.Context, orderID, method string, payload models.PaymentPayload) (*models.Order, []Effect, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.Paid {
		return order, nil, nil
	}

	// Errors from a previous attempt must not veto this one.
	order.ClearPaymentErrors()

	switch method {
	case models.MethodStripe:
		err = s.payWithCard(ctx, order, payload)
	default:
		err = s.payManually(ctx, order, method, payload)
	}
	if err != nil {
		return nil, nil, err
	}

	if order.Paid && !order.HasPaymentErrors() {
		s.logger.LogPayment("PAY", order.ID, fmt.Sprintf("paid %.2f via %s", order.NetAmountReceived+order.TotalFeeAmount, order.PaymentMethod))
		return order, paidEffects(order, true), nil
	}
	return order, nil, nil
}

func (s *OrderService) payManually(ctx context.Context, order *models.Order, method string, payload models.PaymentPayload) error {
	now := s.now()

	order.PaymentMethod = method
	order.Paid = true
	order.PaidAmount = payload.PaidAmount
	order.TotalFeeAmount = 0
	if payload.PaidAmount != nil {
		order.NetAmountReceived = *payload.PaidAmount
	}
	if method == models.MethodCheck && payload.CheckNumber != "" {
		order.SetCheckNumber(payload.CheckNumber)
	}

	// A manual payment without an amount on an order that owes money is
	// reverted here, not rejected.
	order.CheckPaidStatus()
	if order.Paid {
		order.PaymentReceivedAt = &now
	}

	if err := s.DB.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("persist payment on order %s: %w", order.ID, err)
	}
	return nil
}

func (s *OrderService) payWithCard(ctx context.Context, order *models.Order, payload models.PaymentPayload) error {
	integration, err := s.DB.IntegrationFor(ctx, order.Host(), models.IntegrationStripe)
	if err != nil {
		return fmt.Errorf("load processor integration: %w", err)
	}
	accessToken := ""
	if integration != nil {
		accessToken = integration.AccessToken()
	}

	// Every missing piece is reported, not just the first.
	if payload.CheckoutToken == "" {
		order.AddPaymentError(ErrMsgNoCheckoutInfo)
	}
	if integration == nil {
		order.AddPaymentError(ErrMsgNoIntegration)
	}
	if accessToken == "" {
		order.AddPaymentError(ErrMsgNoAccessToken)
	}
	if order.HasPaymentErrors() {
		return nil
	}

	attendeesPayFees, err := s.DB.MakeAttendeesPayFees(ctx, order.Host())
	if err != nil {
		return fmt.Errorf("load fee policy: %w", err)
	}

	total := order.Total()
	charge, net, fee := splitCharge(total, attendeesPayFees)

	result, err := s.Charger.Charge(ctx, ChargeRequest{
		AccessToken:    accessToken,
		Token:          payload.CheckoutToken,
		Email:          payload.CheckoutEmail,
		AmountCents:    Cents(charge),
		Description:    "Order " + order.ID,
		IdempotencyKey: order.ID,
	})
	if err != nil {
		var procErr *ProcessorError
		if errors.As(err, &procErr) {
			// Declines are recorded on the order, not raised.
			order.AddPaymentError(procErr.Error())
			order.SetPaymentDetails(map[string]string{"decline_code": procErr.Code})
			if updateErr := s.DB.UpdateOrder(ctx, order); updateErr != nil {
				return fmt.Errorf("record decline on order %s: %w", order.ID, updateErr)
			}
			s.logger.LogPayment("DECLINE", order.ID, procErr.Error())
			return nil
		}
		return fmt.Errorf("charge for order %s: %w", order.ID, err)
	}

	now := s.now()
	order.PaymentMethod = models.MethodStripe
	order.Paid = true
	order.PaidAmount = &charge
	order.NetAmountReceived = net
	order.TotalFeeAmount = fee
	order.IsFeeAbsorbed = !attendeesPayFees
	order.PaymentReceivedAt = &now
	if order.PayerID == "" {
		order.PayerID = order.UserID
	}
	details := map[string]string{"charge_id": result.ChargeID}
	if result.ReceiptURL != "" {
		details["receipt_url"] = result.ReceiptURL
	}
	order.SetPaymentDetails(details)
	order.CheckPaidStatus()

	if err := s.DB.UpdateOrder(ctx, order); err != nil {
		// The charge went through but the row moved under us. The
		// idempotency key makes the retry safe.
		return fmt.Errorf("persist charge %s on order %s: %w", result.ChargeID, order.ID, err)
	}
	return nil
}

// splitCharge computes the charged, net, and fee amounts for a card payment.
// When attendees pay fees the charge is grossed up so the host nets the
// order total; otherwise the fee comes out of the total.
func splitCharge(total float64, attendeesPayFees bool) (charge, net, fee float64) {
	if attendeesPayFees {
		charge = grossForNet(total)
		return charge, total, round2(charge - total)
	}
	fee = feeForAmount(total)
	return total, round2(total - fee), fee
}
