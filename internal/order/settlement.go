package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"regdesk/internal/models"
)

// AmountOwed computes the attendance's outstanding balance from its orders.
// Always computed fresh; nothing caches this number.
func (s *OrderService) AmountOwed(ctx context.Context, attendanceID string) (float64, error) {
	orders, err := s.DB.OrdersByAttendance(ctx, attendanceID)
	if err != nil {
		return 0, fmt.Errorf("load orders for attendance %s: %w", attendanceID, err)
	}
	owed := 0.0
	for _, order := range orders {
		owed += order.Owes()
	}
	return owed, nil
}

// UnpaidOrder returns the attendance's most recent unpaid order, nil when
// everything is settled.
func (s *OrderService) UnpaidOrder(ctx context.Context, attendanceID string) (*models.Order, error) {
	return s.DB.UnpaidOrderByAttendance(ctx, attendanceID)
}

// MarkPaid settles every unpaid order on an attendance as a manual payment.
// When nothing is outstanding it builds a fresh order and settles that, so
// walk-up registrations paid at the desk still get an invoice. Runs under
// the attendance lock.
func (s *OrderService) MarkPaid(ctx context.Context, attendanceID string, info models.PaymentInfo) ([]*models.Order, []Effect, error) {
	owner := uuid.New().String()
	if s.Lock != nil {
		ok, err := s.Lock.Lock(ctx, attendanceID, owner)
		if err != nil {
			return nil, nil, fmt.Errorf("lock attendance %s: %w", attendanceID, err)
		}
		if !ok {
			return nil, nil, ErrAttendanceBusy
		}
		defer s.Lock.Unlock(ctx, attendanceID, owner)
	}

	orders, err := s.DB.OrdersByAttendance(ctx, attendanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("load orders for attendance %s: %w", attendanceID, err)
	}

	var unpaid []*models.Order
	for _, order := range orders {
		if !order.Paid {
			unpaid = append(unpaid, order)
		}
	}

	var settled []*models.Order
	var effects []Effect

	if len(unpaid) == 0 {
		attendance, err := s.DB.GetAttendance(ctx, attendanceID)
		if err != nil {
			return nil, nil, fmt.Errorf("load attendance %s: %w", attendanceID, err)
		}
		order, err := s.BuildOrder(ctx, attendance, OrderOverrides{PaymentMethod: info.PaymentMethod})
		if err != nil {
			return nil, nil, err
		}
		s.settleManually(order, info)
		if err := s.DB.CreateOrder(ctx, order); err != nil {
			return nil, nil, fmt.Errorf("persist order: %w", err)
		}
		s.publishCreated(order)
		effects = append(effects, discountUseEffects(order)...)
		if order.Paid {
			effects = append(effects, paidEffects(order, false)...)
		}
		settled = append(settled, order)
		s.logger.LogPayment("MARK_PAID", order.ID, fmt.Sprintf("fresh order settled via %s", order.PaymentMethod))
		return settled, effects, nil
	}

	for _, order := range unpaid {
		s.settleManually(order, info)
		if err := s.DB.UpdateOrder(ctx, order); err != nil {
			return settled, effects, fmt.Errorf("settle order %s: %w", order.ID, err)
		}
		if order.Paid {
			effects = append(effects, paidEffects(order, false)...)
		}
		settled = append(settled, order)
		s.logger.LogPayment("MARK_PAID", order.ID, fmt.Sprintf("settled via %s", order.PaymentMethod))
	}

	return settled, effects, nil
}

// settleManually flips an order to paid for an out-of-band payment. The
// caller-supplied amount is trusted; absent one the full total is assumed.
// No processor fee applies.
func (s *OrderService) settleManually(order *models.Order, info models.PaymentInfo) {
	now := s.now()

	if info.PaymentMethod != "" {
		order.PaymentMethod = info.PaymentMethod
	}
	if order.PaymentMethod == models.MethodCheck && info.CheckNumber != "" {
		order.SetCheckNumber(info.CheckNumber)
	}

	amount := order.Total()
	if info.PaidAmount != nil {
		amount = *info.PaidAmount
	}
	order.Paid = true
	order.PaidAmount = &amount
	order.NetAmountReceived = amount
	order.TotalFeeAmount = 0
	order.PaymentReceivedAt = &now

	order.CheckPaidStatus()
}
