package order

import (
	"context"
	"fmt"

	"regdesk/internal/models"
)

type EffectKind string

// Side effects a settlement operation wants run after its own writes have
// committed. Returning them instead of firing them inline keeps the money
// path free of email and broker failures.
const (
	EffectSendReceipt       EffectKind = "send_receipt"
	EffectProcessMembership EffectKind = "process_membership"
	EffectPublishOrderPaid  EffectKind = "publish_order_paid"
	EffectCountDiscountUse  EffectKind = "count_discount_use"
)

type Effect struct {
	Kind       EffectKind `json:"kind"`
	OrderID    string     `json:"order_id"`
	DiscountID string     `json:"discount_id,omitempty"`
}

// discountUseEffects emits one usage-count effect per discount the order
// carries.
func discountUseEffects(order *models.Order) []Effect {
	var effects []Effect
	for _, li := range order.LineItems {
		if li.LineItemType == models.ItemDiscount {
			effects = append(effects, Effect{
				Kind:       EffectCountDiscountUse,
				OrderID:    order.ID,
				DiscountID: li.LineItemID,
			})
		}
	}
	return effects
}

func paidEffects(order *models.Order, withReceipt bool) []Effect {
	effects := []Effect{
		{Kind: EffectProcessMembership, OrderID: order.ID},
		{Kind: EffectPublishOrderPaid, OrderID: order.ID},
	}
	if withReceipt {
		effects = append([]Effect{{Kind: EffectSendReceipt, OrderID: order.ID}}, effects...)
	}
	return effects
}

// RunEffects executes settlement side effects. Each effect is best-effort:
// a failed receipt or publish is logged and never unwinds the payment.
func (s *OrderService) RunEffects(ctx context.Context, effects []Effect) {
	for _, effect := range effects {
		if err := s.runEffect(ctx, effect); err != nil {
			s.logger.Error("EFFECT", fmt.Sprintf("%s for order %s: %v", effect.Kind, effect.OrderID, err))
		}
	}
}

func (s *OrderService) runEffect(ctx context.Context, effect Effect) error {
	switch effect.Kind {
	case EffectSendReceipt:
		return s.sendReceipt(ctx, effect.OrderID)

	case EffectProcessMembership:
		if s.Memberships == nil {
			return nil
		}
		order, err := s.DB.GetOrderByID(ctx, effect.OrderID)
		if err != nil {
			return err
		}
		return s.Memberships.ProcessMembership(ctx, order)

	case EffectPublishOrderPaid:
		order, err := s.DB.GetOrderByID(ctx, effect.OrderID)
		if err != nil {
			return err
		}
		s.publishPaid(order)
		return nil

	case EffectCountDiscountUse:
		return s.DB.IncrementDiscountUsage(ctx, effect.DiscountID)

	default:
		return fmt.Errorf("unknown effect kind %q", effect.Kind)
	}
}

func (s *OrderService) sendReceipt(ctx context.Context, orderID string) error {
	if s.Receipts == nil {
		return nil
	}
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	attendance, err := s.DB.GetAttendance(ctx, order.AttendanceID)
	if err != nil {
		return err
	}
	attendee, err := s.DB.GetUser(ctx, attendance.AttendeeID)
	if err != nil {
		return err
	}
	email := attendance.AttendeeEmail(attendee)
	if email == "" {
		s.logger.Warn("RECEIPT", "no email on record for order "+orderID)
		return nil
	}
	return s.Receipts.SendReceipt(order, email, attendance.AttendeeName(attendee))
}
