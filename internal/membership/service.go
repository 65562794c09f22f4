package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"regdesk/internal/logger"
	"regdesk/internal/models"
)

// Default membership term when an option does not specify one.
const defaultDurationMonths = 12

type Store interface {
	RenewalByOrder(ctx context.Context, orderID, optionID string) (*models.MembershipRenewal, error)
	LatestRenewal(ctx context.Context, userID, optionID string) (*models.MembershipRenewal, error)
	CreateRenewal(ctx context.Context, renewal *models.MembershipRenewal) error
	HasActiveMembership(ctx context.Context, userID, organizationID string, at time.Time) (bool, error)
	MembershipOption(ctx context.Context, id string) (*models.LineItem, error)
	MembershipDiscount(ctx context.Context, organizationID string) (*models.LineItem, error)
}

// Service grants membership renewals off paid orders and applies the member
// discount to unpaid ones.
type Service struct {
	Store Store

	logger *logger.Logger
	now    func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		Store:  store,
		logger: logger.NewLogger(),
		now:    time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ProcessMembership grants or extends a renewal for every membership option
// on a paid organization order. Keyed by order ID, so running it twice for
// the same order changes nothing.
func (s *Service) ProcessMembership(ctx context.Context, order *models.Order) error {
	if !order.Paid || !order.BelongsToOrganization() || order.UserID == "" {
		return nil
	}

	now := s.now()
	for _, li := range order.LineItems {
		if li.LineItemType != models.ItemMembershipOption {
			continue
		}

		existing, err := s.Store.RenewalByOrder(ctx, order.ID, li.LineItemID)
		if err != nil {
			return fmt.Errorf("check renewal for order %s: %w", order.ID, err)
		}
		if existing != nil {
			continue
		}

		option, err := s.Store.MembershipOption(ctx, li.LineItemID)
		if err != nil {
			return fmt.Errorf("load membership option %s: %w", li.LineItemID, err)
		}
		months := defaultDurationMonths
		if option != nil {
			months = option.Metadata.DurationMonths
		}
		if months <= 0 {
			months = defaultDurationMonths
		}

		// An unexpired membership extends from its expiry, not from today.
		start := now
		latest, err := s.Store.LatestRenewal(ctx, order.UserID, li.LineItemID)
		if err != nil {
			return fmt.Errorf("load latest renewal: %w", err)
		}
		if latest != nil && latest.ExpiresAt.After(start) {
			start = latest.ExpiresAt
		}

		renewal := &models.MembershipRenewal{
			ID:                 uuid.New().String(),
			UserID:             order.UserID,
			MembershipOptionID: li.LineItemID,
			OrderID:            order.ID,
			StartDate:          start,
			ExpiresAt:          start.AddDate(0, months, 0),
			CreatedAt:          now,
		}
		if err := s.Store.CreateRenewal(ctx, renewal); err != nil {
			return fmt.Errorf("create renewal: %w", err)
		}
		s.logger.LogMembership("RENEW", order.UserID,
			fmt.Sprintf("option %s through %s (order %s)", li.LineItemID, renewal.ExpiresAt.Format("2006-01-02"), order.ID))
	}

	return nil
}

// ApplyMembershipDiscount adds the organization's member discount to an
// unpaid order when the purchaser holds an active membership. Paid orders
// are frozen financial records and never touched.
func (s *Service) ApplyMembershipDiscount(ctx context.Context, order *models.Order) error {
	if order.Paid || !order.BelongsToOrganization() || order.UserID == "" {
		return nil
	}

	active, err := s.Store.HasActiveMembership(ctx, order.UserID, order.HostID, s.now())
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !active {
		return nil
	}

	discount, err := s.Store.MembershipDiscount(ctx, order.HostID)
	if err != nil {
		return fmt.Errorf("load member discount: %w", err)
	}
	if discount == nil || discount.Price == nil || discount.UsedUp() {
		return nil
	}
	if order.UsesDiscount(discount.ID) {
		return nil
	}

	order.AddItem(discount, *discount.Price, 1)
	return nil
}
