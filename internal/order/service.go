package order

import (
	"context"
	"time"

	"regdesk/internal/config"
	"regdesk/internal/logger"
	"regdesk/internal/models"
)

type DBLayer interface {
	GetAttendance(ctx context.Context, id string) (*models.Attendance, error)
	UpdateAttendance(ctx context.Context, a *models.Attendance) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	OrdersByAttendance(ctx context.Context, attendanceID string) ([]*models.Order, error)
	UnpaidOrderByAttendance(ctx context.Context, attendanceID string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetPricingTier(ctx context.Context, id string) (*models.PricingTier, error)
	TiersForEvent(ctx context.Context, eventID string) ([]*models.PricingTier, error)
	RegistrantCount(ctx context.Context, host models.HostRef) (int, error)
	MakeAttendeesPayFees(ctx context.Context, host models.HostRef) (bool, error)
	IntegrationFor(ctx context.Context, host models.HostRef, kind string) (*models.Integration, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	IncrementDiscountUsage(ctx context.Context, discountID string) error
}

type Catalog interface {
	Find(ctx context.Context, id string) (*models.LineItem, error)
	ListForAttendance(ctx context.Context, a *models.Attendance) ([]*models.LineItem, error)
}

type AttendanceLock interface {
	Lock(ctx context.Context, attendanceID, owner string) (bool, error)
	Unlock(ctx context.Context, attendanceID, owner string) error
}

type KafkaPublisher interface {
	PublishOrderCreated(order *models.Order) error
	PublishOrderPaid(order *models.Order) error
}

type CardCharger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type ReceiptSender interface {
	SendReceipt(order *models.Order, email, name string) error
}

type MembershipProcessor interface {
	ProcessMembership(ctx context.Context, order *models.Order) error
	ApplyMembershipDiscount(ctx context.Context, order *models.Order) error
}

// OrderService is the settlement engine: it builds orders from attendances,
// owns the paid/unpaid transition, and hands money-adjacent side effects
// back to the caller as explicit effects.
type OrderService struct {
	DB          DBLayer
	Catalog     Catalog
	Lock        AttendanceLock
	Kafka       KafkaPublisher
	Charger     CardCharger
	Receipts    ReceiptSender
	Memberships MembershipProcessor

	Builder config.BuilderConfig

	logger *logger.Logger
	now    func() time.Time
}

func NewOrderService(
	db DBLayer,
	catalog Catalog,
	lock AttendanceLock,
	kafka KafkaPublisher,
	charger CardCharger,
	receipts ReceiptSender,
	memberships MembershipProcessor,
	builder config.BuilderConfig,
) *OrderService {
	return &OrderService{
		DB:          db,
		Catalog:     catalog,
		Lock:        lock,
		Kafka:       kafka,
		Charger:     charger,
		Receipts:    receipts,
		Memberships: memberships,
		Builder:     builder,
		logger:      logger.NewLogger(),
		now:         time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

func (s *OrderService) publishCreated(order *models.Order) {
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishOrderCreated(order); err != nil {
		s.logger.Warn("KAFKA", "publish order created "+order.ID+": "+err.Error())
	}
}

func (s *OrderService) publishPaid(order *models.Order) {
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishOrderPaid(order); err != nil {
		s.logger.Warn("KAFKA", "publish order paid "+order.ID+": "+err.Error())
	}
}
