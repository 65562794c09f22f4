package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"regdesk/internal/catalog"
	"regdesk/internal/models"
	"regdesk/internal/pricing"
)

// OrderOverrides carries the optional knobs of an order build request.
type OrderOverrides struct {
	PaymentMethod string
	PricingTierID string
}

// CreateOrder builds and persists a new order for an attendance under the
// attendance lock, so concurrent builds cannot race tier resolution.
func (s *OrderService) CreateOrder(ctx context.Context, attendanceID string, ov OrderOverrides) (*models.Order, []Effect, error) {
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

	attendance, err := s.DB.GetAttendance(ctx, attendanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("load attendance %s: %w", attendanceID, err)
	}

	order, err := s.BuildOrder(ctx, attendance, ov)
	if err != nil {
		return nil, nil, err
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, nil, fmt.Errorf("persist order: %w", err)
	}
	s.logger.LogOrder("CREATE", order.ID, fmt.Sprintf("attendance %s total %.2f", attendanceID, order.Total()))
	s.publishCreated(order)

	effects := discountUseEffects(order)
	if order.Paid {
		// Zero-total orders settle at creation and still owe their side
		// effects, minus the receipt.
		effects = append(effects, paidEffects(order, false)...)
	}
	return order, effects, nil
}

// BuildOrder assembles an order from an attendance's selections without
// persisting it. Prices and quantities are snapshotted at build time; the
// paid flag is normalized before return so zero-total orders come back
// already settled.
func (s *OrderService) BuildOrder(ctx context.Context, attendance *models.Attendance, ov OrderOverrides) (*models.Order, error) {
	now := s.now()

	order := &models.Order{
		ID:            uuid.New().String(),
		HostType:      attendance.HostType,
		HostID:        attendance.HostID,
		AttendanceID:  attendance.ID,
		UserID:        attendance.AttendeeID,
		PaymentMethod: models.MethodCash,
		IsFeeAbsorbed: true,
		CreatedAt:     now,
	}
	if ov.PaymentMethod != "" {
		order.PaymentMethod = ov.PaymentMethod
	}

	var event *models.Event
	if attendance.HostType == models.HostEvent {
		ev, err := s.DB.GetEvent(ctx, attendance.HostID)
		if err != nil {
			return nil, fmt.Errorf("load event %s: %w", attendance.HostID, err)
		}
		event = ev
	}

	tier, err := s.resolveTier(ctx, attendance, ov, now)
	if err != nil {
		return nil, err
	}
	if tier != nil {
		order.PricingTierID = tier.ID
	}

	items, err := s.Catalog.ListForAttendance(ctx, attendance)
	if err != nil {
		return nil, fmt.Errorf("load selections: %w", err)
	}

	for _, item := range items {
		if err := s.addItemToOrder(order, attendance, item, tier, event, now); err != nil {
			return nil, err
		}
	}

	if s.Memberships != nil && order.BelongsToOrganization() {
		if err := s.Memberships.ApplyMembershipDiscount(ctx, order); err != nil {
			s.logger.Warn("ORDER", fmt.Sprintf("membership discount for order %s: %v", order.ID, err))
		}
	}

	order.CheckPaidStatus()
	return order, nil
}

func (s *OrderService) addItemToOrder(order *models.Order, attendance *models.Attendance, item *models.LineItem, tier *models.PricingTier, event *models.Event, now time.Time) error {
	switch item.ItemType {
	case models.ItemDiscount:
		if item.Disabled || item.UsedUp() || item.Price == nil {
			return nil
		}
		order.AddItem(item, *item.Price, 1)
		return nil

	case models.ItemShirt:
		for size, sel := range attendance.Metadata.Shirts[item.ID] {
			if sel.Quantity <= 0 {
				continue
			}
			price, err := s.shirtPrice(item, size, tier, event, now)
			if err != nil {
				return err
			}
			oli := order.AddItem(item, price, sel.Quantity)
			oli.Size = size
			oli.Color = sel.Color
		}
		return nil

	default:
		quantity := 1
		if item.ItemType == models.ItemLesson {
			quantity = attendance.TotalQuantityForLineItem(item.ID)
		}
		if quantity <= 0 {
			return nil
		}
		price, err := s.itemPrice(item, tier, event, now)
		if err != nil {
			return err
		}
		oli := order.AddItem(item, price, quantity)
		if item.RequiresOrientation {
			oli.DanceOrientation = attendance.DanceOrientation
		}
		return nil
	}
}

// itemPrice resolves an item's snapshot price: tiered, then current, then
// (when allowed) the raw value column.
func (s *OrderService) itemPrice(item *models.LineItem, tier *models.PricingTier, event *models.Event, at time.Time) (float64, error) {
	price, err := catalog.ResolvePrice(item, tier, event, at)
	if err == nil {
		return price, nil
	}
	if s.Builder.AllowRawValueFallback && item.Price != nil {
		return *item.Price, nil
	}
	return 0, fmt.Errorf("%w: item %s", ErrPricingUnresolved, item.ID)
}

func (s *OrderService) shirtPrice(item *models.LineItem, size string, tier *models.PricingTier, event *models.Event, at time.Time) (float64, error) {
	if p := item.PriceForSize(size); p != nil {
		return *p, nil
	}
	return s.itemPrice(item, tier, event, at)
}

// resolveTier picks the pricing tier for an order build: an explicit
// override wins, then the tier pinned on the attendance, then whatever
// tier is active for the event right now.
func (s *OrderService) resolveTier(ctx context.Context, attendance *models.Attendance, ov OrderOverrides, at time.Time) (*models.PricingTier, error) {
	if !attendance.CarriesPricingTier() {
		return nil, nil
	}

	tierID := ov.PricingTierID
	if tierID == "" {
		tierID = attendance.PricingTierID
	}
	if tierID != "" {
		tier, err := s.DB.GetPricingTier(ctx, tierID)
		if err != nil {
			return nil, fmt.Errorf("load pricing tier %s: %w", tierID, err)
		}
		return tier, nil
	}

	tiers, err := s.DB.TiersForEvent(ctx, attendance.HostID)
	if err != nil {
		return nil, fmt.Errorf("load pricing tiers: %w", err)
	}
	if len(tiers) == 0 {
		return nil, nil
	}
	registrants, err := s.DB.RegistrantCount(ctx, attendance.Host())
	if err != nil {
		return nil, fmt.Errorf("count registrants: %w", err)
	}
	return pricing.Resolve(tiers, at, registrants), nil
}
