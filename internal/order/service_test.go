package order_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"regdesk/internal/config"
	"regdesk/internal/models"
	"regdesk/internal/order"
)

// Mock implementations for testing

type MockDB struct {
	attendances      map[string]*models.Attendance
	orders           map[string]*models.Order
	events           map[string]*models.Event
	tiers            map[string]*models.PricingTier
	eventTiers       map[string][]*models.PricingTier
	users            map[string]*models.User
	integrations     map[string]*models.Integration
	attendeesPayFees bool
	registrants      int
	discountUses     map[string]int
	shouldFailOn     string
	errorMsg         string
}

func NewMockDB() *MockDB {
	return &MockDB{
		attendances:  make(map[string]*models.Attendance),
		orders:       make(map[string]*models.Order),
		events:       make(map[string]*models.Event),
		tiers:        make(map[string]*models.PricingTier),
		eventTiers:   make(map[string][]*models.PricingTier),
		users:        make(map[string]*models.User),
		integrations: make(map[string]*models.Integration),
		discountUses: make(map[string]int),
	}
}

func (m *MockDB) fail(op string) error {
	if m.shouldFailOn == op {
		return errors.New(m.errorMsg)
	}
	return nil
}

func (m *MockDB) GetAttendance(ctx context.Context, id string) (*models.Attendance, error) {
	if err := m.fail("GetAttendance"); err != nil {
		return nil, err
	}
	a, ok := m.attendances[id]
	if !ok {
		return nil, errors.New("attendance not found")
	}
	return a, nil
}

func (m *MockDB) UpdateAttendance(ctx context.Context, a *models.Attendance) error {
	if err := m.fail("UpdateAttendance"); err != nil {
		return err
	}
	m.attendances[a.ID] = a
	return nil
}

func (m *MockDB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	if err := m.fail("GetOrderByID"); err != nil {
		return nil, err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	return o, nil
}

func (m *MockDB) OrdersByAttendance(ctx context.Context, attendanceID string) ([]*models.Order, error) {
	if err := m.fail("OrdersByAttendance"); err != nil {
		return nil, err
	}
	var out []*models.Order
	for _, o := range m.orders {
		if o.AttendanceID == attendanceID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockDB) UnpaidOrderByAttendance(ctx context.Context, attendanceID string) (*models.Order, error) {
	orders, _ := m.OrdersByAttendance(ctx, attendanceID)
	var latest *models.Order
	for _, o := range orders {
		if !o.Paid {
			latest = o
		}
	}
	return latest, nil
}

func (m *MockDB) CreateOrder(ctx context.Context, o *models.Order) error {
	if err := m.fail("CreateOrder"); err != nil {
		return err
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MockDB) UpdateOrder(ctx context.Context, o *models.Order) error {
	if err := m.fail("UpdateOrder"); err != nil {
		return err
	}
	if _, ok := m.orders[o.ID]; !ok {
		return errors.New("order not found")
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MockDB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, errors.New("event not found")
	}
	return e, nil
}

func (m *MockDB) GetPricingTier(ctx context.Context, id string) (*models.PricingTier, error) {
	t, ok := m.tiers[id]
	if !ok {
		return nil, errors.New("pricing tier not found")
	}
	return t, nil
}

func (m *MockDB) TiersForEvent(ctx context.Context, eventID string) ([]*models.PricingTier, error) {
	return m.eventTiers[eventID], nil
}

func (m *MockDB) RegistrantCount(ctx context.Context, host models.HostRef) (int, error) {
	return m.registrants, nil
}

func (m *MockDB) MakeAttendeesPayFees(ctx context.Context, host models.HostRef) (bool, error) {
	return m.attendeesPayFees, nil
}

func (m *MockDB) IntegrationFor(ctx context.Context, host models.HostRef, kind string) (*models.Integration, error) {
	return m.integrations[host.ID], nil
}

func (m *MockDB) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, nil
	}
	return m.users[id], nil
}

func (m *MockDB) IncrementDiscountUsage(ctx context.Context, discountID string) error {
	m.discountUses[discountID]++
	return nil
}

type MockCatalog struct {
	items      map[string]*models.LineItem
	selections map[string][]*models.LineItem
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		items:      make(map[string]*models.LineItem),
		selections: make(map[string][]*models.LineItem),
	}
}

func (m *MockCatalog) Find(ctx context.Context, id string) (*models.LineItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, errors.New("item not found")
	}
	return item, nil
}

func (m *MockCatalog) ListForAttendance(ctx context.Context, a *models.Attendance) ([]*models.LineItem, error) {
	return m.selections[a.ID], nil
}

type MockLock struct {
	held            map[string]string
	lockingSucceeds bool
}

func NewMockLock() *MockLock {
	return &MockLock{held: make(map[string]string), lockingSucceeds: true}
}

func (m *MockLock) Lock(ctx context.Context, attendanceID, owner string) (bool, error) {
	if !m.lockingSucceeds {
		return false, nil
	}
	if _, ok := m.held[attendanceID]; ok {
		return false, nil
	}
	m.held[attendanceID] = owner
	return true, nil
}

func (m *MockLock) Unlock(ctx context.Context, attendanceID, owner string) error {
	if m.held[attendanceID] == owner {
		delete(m.held, attendanceID)
	}
	return nil
}

type MockPublisher struct {
	created []string
	paid    []string
}

func (m *MockPublisher) PublishOrderCreated(o *models.Order) error {
	m.created = append(m.created, o.ID)
	return nil
}

func (m *MockPublisher) PublishOrderPaid(o *models.Order) error {
	m.paid = append(m.paid, o.ID)
	return nil
}

type MockCharger struct {
	requests []order.ChargeRequest
	result   *order.ChargeResult
	err      error
}

func (m *MockCharger) Charge(ctx context.Context, req order.ChargeRequest) (*order.ChargeResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type MockReceipts struct {
	sent []string
}

func (m *MockReceipts) SendReceipt(o *models.Order, email, name string) error {
	m.sent = append(m.sent, email)
	return nil
}

type MockMemberships struct {
	processed []string
}

func (m *MockMemberships) ProcessMembership(ctx context.Context, o *models.Order) error {
	m.processed = append(m.processed, o.ID)
	return nil
}

func (m *MockMemberships) ApplyMembershipDiscount(ctx context.Context, o *models.Order) error {
	return nil
}

type testEnv struct {
	db          *MockDB
	catalog     *MockCatalog
	lock        *MockLock
	kafka       *MockPublisher
	charger     *MockCharger
	receipts    *MockReceipts
	memberships *MockMemberships
	service     *order.OrderService
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:          NewMockDB(),
		catalog:     NewMockCatalog(),
		lock:        NewMockLock(),
		kafka:       &MockPublisher{},
		charger:     &MockCharger{},
		receipts:    &MockReceipts{},
		memberships: &MockMemberships{},
	}
	env.service = order.NewOrderService(
		env.db, env.catalog, env.lock, env.kafka, env.charger, env.receipts, env.memberships,
		config.BuilderConfig{AllowRawValueFallback: true},
	)
	return env
}

func price(v float64) *float64 { return &v }

// seedEventAttendance wires up an event, an attendance, and a package at the
// given price.
func seedEventAttendance(env *testEnv, packagePrice float64) *models.Attendance {
	env.db.events["evt-1"] = &models.Event{ID: "evt-1", Name: "Spring Fling"}
	attendance := &models.Attendance{
		ID:         "att-1",
		AttendeeID: "user-1",
		HostType:   models.HostEvent,
		HostID:     "evt-1",
		PackageID:  "pkg-1",
	}
	env.db.attendances["att-1"] = attendance
	env.db.users["user-1"] = &models.User{ID: "user-1", FirstName: "Jo", LastName: "Shaw", Email: "jo@example.com"}

	pkg := &models.LineItem{
		ID:           "pkg-1",
		HostType:     models.HostEvent,
		HostID:       "evt-1",
		Name:         "Full Weekend",
		ItemType:     models.ItemPackage,
		InitialPrice: price(packagePrice),
	}
	env.catalog.items["pkg-1"] = pkg
	env.catalog.selections["att-1"] = []*models.LineItem{pkg}
	return attendance
}

func TestAmountOwedWithNoOrders(t *testing.T) {
	env := setupService(t)
	env.db.attendances["att-1"] = &models.Attendance{ID: "att-1", HostType: models.HostEvent, HostID: "evt-1"}

	owed, err := env.service.AmountOwed(context.Background(), "att-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if owed != 0 {
		t.Errorf("Expected 0 owed with no orders, got %f", owed)
	}
}

func TestCreateOrderSnapshotsPackagePrice(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	created, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if created.Total() != 50 {
		t.Errorf("Expected total 50, got %f", created.Total())
	}
	if created.Paid {
		t.Error("Expected order to be unpaid")
	}
	if len(created.LineItems) != 1 {
		t.Fatalf("Expected 1 line item, got %d", len(created.LineItems))
	}
	if created.LineItems[0].Price != 50 {
		t.Errorf("Expected snapshot price 50, got %f", created.LineItems[0].Price)
	}
	if len(env.kafka.created) != 1 {
		t.Errorf("Expected 1 order-created event, got %d", len(env.kafka.created))
	}

	// Raising the catalog price later must not change the snapshot.
	env.catalog.items["pkg-1"].InitialPrice = price(75)
	stored := env.db.orders[created.ID]
	if stored.Total() != 50 {
		t.Errorf("Expected stored total to stay 50 after catalog change, got %f", stored.Total())
	}

	owed, _ := env.service.AmountOwed(context.Background(), "att-1")
	if owed != 50 {
		t.Errorf("Expected 50 owed, got %f", owed)
	}
	unpaid, _ := env.service.UnpaidOrder(context.Background(), "att-1")
	if unpaid == nil || unpaid.ID != created.ID {
		t.Error("Expected the new order to be the unpaid order")
	}
}

func TestCreateOrderZeroTotalSettlesImmediately(t *testing.T) {
	env := setupService(t)
	env.db.events["evt-1"] = &models.Event{ID: "evt-1"}
	env.db.attendances["att-1"] = &models.Attendance{ID: "att-1", HostType: models.HostEvent, HostID: "evt-1"}

	created, effects, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !created.Paid {
		t.Error("Expected zero-total order to be paid")
	}
	if created.PayerID != models.ZeroTotalPayerID {
		t.Errorf("Expected payer id %q, got %q", models.ZeroTotalPayerID, created.PayerID)
	}
	if created.PaidAmount == nil || *created.PaidAmount != 0 {
		t.Error("Expected paid amount 0")
	}

	env.service.RunEffects(context.Background(), effects)
	if len(env.receipts.sent) != 0 {
		t.Error("Expected no receipt for zero-total settle")
	}
	if len(env.kafka.paid) != 1 {
		t.Errorf("Expected 1 order-paid event, got %d", len(env.kafka.paid))
	}
	if len(env.memberships.processed) != 1 {
		t.Errorf("Expected membership processing once, got %d", len(env.memberships.processed))
	}

	owed, _ := env.service.AmountOwed(context.Background(), "att-1")
	if owed != 0 {
		t.Errorf("Expected 0 owed, got %f", owed)
	}
}

func TestCreateOrderWhileLocked(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)
	env.lock.held["att-1"] = "someone-else"

	_, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if !errors.Is(err, order.ErrAttendanceBusy) {
		t.Errorf("Expected ErrAttendanceBusy, got %v", err)
	}
}

func TestCreateOrderAppliesActiveTier(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	past := time.Now().Add(-24 * time.Hour)
	env.db.eventTiers["evt-1"] = []*models.PricingTier{
		{ID: "tier-1", EventID: "evt-1", IncreaseByDollars: 10, Date: &past},
	}

	created, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if created.PricingTierID != "tier-1" {
		t.Errorf("Expected tier-1 on order, got %q", created.PricingTierID)
	}
	if created.Total() != 60 {
		t.Errorf("Expected tiered total 60, got %f", created.Total())
	}
}

func TestCreateOrderUnpricedItemFails(t *testing.T) {
	env := setupService(t)
	attendance := seedEventAttendance(env, 50)
	env.catalog.selections[attendance.ID] = []*models.LineItem{
		{ID: "mystery", HostType: models.HostEvent, HostID: "evt-1", Name: "Mystery", ItemType: models.ItemCompetition},
	}
	env.service.Builder.AllowRawValueFallback = false

	_, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if !errors.Is(err, order.ErrPricingUnresolved) {
		t.Errorf("Expected ErrPricingUnresolved, got %v", err)
	}
}

func TestMarkPaidSettlesAllUnpaidOrders(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	created, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	settled, effects, err := env.service.MarkPaid(context.Background(), "att-1", models.PaymentInfo{
		PaymentMethod: models.MethodCheck,
		CheckNumber:   "1042",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(settled) != 1 || settled[0].ID != created.ID {
		t.Fatalf("Expected the unpaid order to be settled")
	}

	got := env.db.orders[created.ID]
	if !got.Paid {
		t.Error("Expected order to be paid")
	}
	if got.PaidAmount == nil || *got.PaidAmount != 50 {
		t.Error("Expected paid amount to default to the order total")
	}
	if got.TotalFeeAmount != 0 {
		t.Errorf("Expected no fee on manual settle, got %f", got.TotalFeeAmount)
	}
	if got.CheckNumber() != "1042" {
		t.Errorf("Expected check number 1042, got %q", got.CheckNumber())
	}

	env.service.RunEffects(context.Background(), effects)
	if len(env.receipts.sent) != 0 {
		t.Error("Expected no receipt for desk settle")
	}

	owed, _ := env.service.AmountOwed(context.Background(), "att-1")
	if owed != 0 {
		t.Errorf("Expected 0 owed after settle, got %f", owed)
	}
}

func TestMarkPaidWithNothingOutstandingBuildsFreshOrder(t *testing.T) {
	env := setupService(t)
	env.db.events["evt-1"] = &models.Event{ID: "evt-1"}
	env.db.attendances["att-1"] = &models.Attendance{ID: "att-1", HostType: models.HostEvent, HostID: "evt-1"}

	settled, _, err := env.service.MarkPaid(context.Background(), "att-1", models.PaymentInfo{PaymentMethod: models.MethodCash})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(settled) != 1 {
		t.Fatalf("Expected one fresh settled order, got %d", len(settled))
	}
	if !settled[0].Paid {
		t.Error("Expected fresh order to be settled")
	}
	if len(env.db.orders) != 1 {
		t.Errorf("Expected fresh order persisted, got %d orders", len(env.db.orders))
	}
}

func TestPayCashSendsExactlyOneReceipt(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	created, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	paid, effects, err := env.service.Pay(context.Background(), created.ID, models.MethodCash, models.PaymentPayload{
		PaidAmount: price(50),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !paid.Paid {
		t.Fatal("Expected order to be paid")
	}
	if paid.NetAmountReceived != 50 {
		t.Errorf("Expected net 50, got %f", paid.NetAmountReceived)
	}
	if paid.TotalFeeAmount != 0 {
		t.Errorf("Expected no fee for cash, got %f", paid.TotalFeeAmount)
	}

	env.service.RunEffects(context.Background(), effects)
	if len(env.receipts.sent) != 1 {
		t.Fatalf("Expected exactly one receipt, got %d", len(env.receipts.sent))
	}
	if env.receipts.sent[0] != "jo@example.com" {
		t.Errorf("Expected receipt to jo@example.com, got %s", env.receipts.sent[0])
	}
	if len(env.kafka.paid) != 1 {
		t.Errorf("Expected 1 order-paid event, got %d", len(env.kafka.paid))
	}

	// Paying again is a no-op and produces no second receipt.
	_, effects, err = env.service.Pay(context.Background(), created.ID, models.MethodCash, models.PaymentPayload{PaidAmount: price(50)})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(effects) != 0 {
		t.Errorf("Expected no effects on repeat pay, got %d", len(effects))
	}
	env.service.RunEffects(context.Background(), effects)
	if len(env.receipts.sent) != 1 {
		t.Errorf("Expected still one receipt, got %d", len(env.receipts.sent))
	}
}

func TestPayManualWithoutAmountStaysUnpaid(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	created, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	paid, effects, err := env.service.Pay(context.Background(), created.ID, models.MethodCash, models.PaymentPayload{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if paid.Paid {
		t.Error("Expected order to stay unpaid without an amount")
	}
	if len(effects) != 0 {
		t.Errorf("Expected no effects, got %d", len(effects))
	}
}

func TestPayCardWithoutTokenRecordsError(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	created, _, _ := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})

	paid, effects, err := env.service.Pay(context.Background(), created.ID, models.MethodStripe, models.PaymentPayload{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if paid.Paid {
		t.Error("Expected order to stay unpaid")
	}
	if len(effects) != 0 {
		t.Errorf("Expected no effects, got %d", len(effects))
	}
	// No token and no integration seeded, so every missing piece is listed.
	want := []string{
		"No Stripe Checkout Information Found",
		"No Stripe Integration Present",
		"No Stripe Access Token Present",
	}
	if fmt.Sprint(paid.PaymentErrors()) != fmt.Sprint(want) {
		t.Errorf("Expected all missing pieces reported, got %v", paid.PaymentErrors())
	}
	if len(env.charger.requests) != 0 {
		t.Error("Expected no charge attempt without a token")
	}
}

func TestPayCardWithoutIntegrationRecordsError(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	created, _, _ := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})

	paid, _, err := env.service.Pay(context.Background(), created.ID, models.MethodStripe, models.PaymentPayload{
		CheckoutToken: "tok_visa",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// A missing integration means a missing access token too.
	want := []string{"No Stripe Integration Present", "No Stripe Access Token Present"}
	if fmt.Sprint(paid.PaymentErrors()) != fmt.Sprint(want) {
		t.Errorf("Expected integration and access token errors, got %v", paid.PaymentErrors())
	}
}

func TestPayCardSuccessAbsorbedFee(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 100)
	env.db.integrations["evt-1"] = &models.Integration{
		ID:        "int-1",
		Kind:      models.IntegrationStripe,
		OwnerType: models.HostEvent,
		OwnerID:   "evt-1",
		Config:    map[string]string{"access_token": "sk_test_123"},
	}
	env.charger.result = &order.ChargeResult{ChargeID: "pi_1", ReceiptURL: "https://stripe.example/r/1"}

	created, _, _ := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})

	paid, effects, err := env.service.Pay(context.Background(), created.ID, models.MethodStripe, models.PaymentPayload{
		CheckoutToken: "tok_visa",
		CheckoutEmail: "jo@example.com",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !paid.Paid {
		t.Fatal("Expected order to be paid")
	}
	if paid.PaidAmount == nil || *paid.PaidAmount != 100 {
		t.Error("Expected charge of the order total when the host absorbs fees")
	}
	// 2.9% + $0.30 on $100.
	if paid.TotalFeeAmount != 3.20 {
		t.Errorf("Expected fee 3.20, got %f", paid.TotalFeeAmount)
	}
	if paid.NetAmountReceived != 96.80 {
		t.Errorf("Expected net 96.80, got %f", paid.NetAmountReceived)
	}
	if !paid.IsFeeAbsorbed {
		t.Error("Expected fee to be absorbed")
	}
	if paid.Metadata.Details["charge_id"] != "pi_1" {
		t.Error("Expected charge id recorded on the order")
	}

	if len(env.charger.requests) != 1 {
		t.Fatalf("Expected one charge, got %d", len(env.charger.requests))
	}
	req := env.charger.requests[0]
	if req.IdempotencyKey != created.ID {
		t.Errorf("Expected idempotency key %s, got %s", created.ID, req.IdempotencyKey)
	}
	if req.AmountCents != 10000 {
		t.Errorf("Expected 10000 cents, got %d", req.AmountCents)
	}

	env.service.RunEffects(context.Background(), effects)
	if len(env.receipts.sent) != 1 {
		t.Errorf("Expected one receipt, got %d", len(env.receipts.sent))
	}
}

func TestPayCardPassedThroughFee(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 100)
	env.db.attendeesPayFees = true
	env.db.integrations["evt-1"] = &models.Integration{
		ID:        "int-1",
		Kind:      models.IntegrationStripe,
		OwnerType: models.HostEvent,
		OwnerID:   "evt-1",
		Config:    map[string]string{"access_token": "sk_test_123"},
	}
	env.charger.result = &order.ChargeResult{ChargeID: "pi_2"}

	created, _, _ := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})

	paid, _, err := env.service.Pay(context.Background(), created.ID, models.MethodStripe, models.PaymentPayload{
		CheckoutToken: "tok_visa",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// Grossed up so the host nets the full total.
	if paid.NetAmountReceived != 100 {
		t.Errorf("Expected net 100, got %f", paid.NetAmountReceived)
	}
	if paid.PaidAmount == nil || *paid.PaidAmount <= 100 {
		t.Error("Expected charge above the total to cover the fee")
	}
	if paid.IsFeeAbsorbed {
		t.Error("Expected fee to be passed through")
	}
}

func TestPayCardDeclineRecordedOnOrder(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)
	env.db.integrations["evt-1"] = &models.Integration{
		ID:        "int-1",
		Kind:      models.IntegrationStripe,
		OwnerType: models.HostEvent,
		OwnerID:   "evt-1",
		Config:    map[string]string{"access_token": "sk_test_123"},
	}
	env.charger.err = &order.ProcessorError{Code: "card_declined", Reason: "Your card was declined."}

	created, _, _ := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})

	paid, effects, err := env.service.Pay(context.Background(), created.ID, models.MethodStripe, models.PaymentPayload{
		CheckoutToken: "tok_chargeDeclined",
	})
	if err != nil {
		t.Fatalf("Expected no error on decline, got %v", err)
	}
	if paid.Paid {
		t.Error("Expected declined order to stay unpaid")
	}
	if len(effects) != 0 {
		t.Errorf("Expected no effects on decline, got %d", len(effects))
	}
	if !paid.HasPaymentErrors() {
		t.Fatal("Expected decline recorded on the order")
	}
	if fmt.Sprint(paid.PaymentErrors()) != "[card_declined: Your card was declined.]" {
		t.Errorf("Unexpected errors: %v", paid.PaymentErrors())
	}

	// The failure is persisted so the desk can see why it failed.
	stored := env.db.orders[created.ID]
	if !stored.HasPaymentErrors() {
		t.Error("Expected decline persisted")
	}
}

func TestPayRetryAfterDeclineEmitsEffects(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)
	env.db.integrations["evt-1"] = &models.Integration{
		ID:        "int-1",
		Kind:      models.IntegrationStripe,
		OwnerType: models.HostEvent,
		OwnerID:   "evt-1",
		Config:    map[string]string{"access_token": "sk_test_123"},
	}
	env.charger.err = &order.ProcessorError{Code: "card_declined", Reason: "Your card was declined."}

	created, _, _ := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})

	if _, _, err := env.service.Pay(context.Background(), created.ID, models.MethodStripe, models.PaymentPayload{
		CheckoutToken: "tok_chargeDeclined",
	}); err != nil {
		t.Fatalf("Expected no error on decline, got %v", err)
	}
	if !env.db.orders[created.ID].HasPaymentErrors() {
		t.Fatal("Expected decline persisted before the retry")
	}

	// The attendee tries again with a good card.
	env.charger.err = nil
	env.charger.result = &order.ChargeResult{ChargeID: "pi_2", ReceiptURL: "https://stripe.example/r/2"}

	paid, effects, err := env.service.Pay(context.Background(), created.ID, models.MethodStripe, models.PaymentPayload{
		CheckoutToken: "tok_visa",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !paid.Paid {
		t.Fatal("Expected order to be paid on retry")
	}
	if paid.HasPaymentErrors() {
		t.Errorf("Expected stale decline cleared, got %v", paid.PaymentErrors())
	}
	if len(effects) == 0 {
		t.Fatal("Expected paid effects on a successful retry")
	}

	env.service.RunEffects(context.Background(), effects)
	if len(env.receipts.sent) != 1 {
		t.Errorf("Expected exactly one receipt, got %d", len(env.receipts.sent))
	}
	if len(env.memberships.processed) != 1 {
		t.Errorf("Expected membership processing on retry, got %d", len(env.memberships.processed))
	}
}

func TestPayManualZeroAmountMarksPaid(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	created, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// A recorded zero amount is a deliberate comp, unlike no amount at all.
	zero := 0.0
	paid, effects, err := env.service.Pay(context.Background(), created.ID, models.MethodCash, models.PaymentPayload{
		PaidAmount: &zero,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !paid.Paid {
		t.Error("Expected explicit zero amount to settle the order")
	}
	if paid.PaidAmount == nil || *paid.PaidAmount != 0 {
		t.Error("Expected recorded paid amount of 0")
	}
	if len(effects) == 0 {
		t.Error("Expected paid effects for a zero-amount settle")
	}

	owed, _ := env.service.AmountOwed(context.Background(), "att-1")
	if owed != 0 {
		t.Errorf("Expected nothing owed after a comped order, got %f", owed)
	}
}

func TestDiscountUsageCountedOnCreate(t *testing.T) {
	env := setupService(t)
	attendance := seedEventAttendance(env, 50)

	discount := &models.LineItem{
		ID:           "disc-1",
		HostType:     models.HostEvent,
		HostID:       "evt-1",
		Name:         "Early Bird",
		ItemType:     models.ItemDiscount,
		Price:        price(10),
		DiscountKind: models.DiscountFlat,
	}
	env.catalog.selections[attendance.ID] = append(env.catalog.selections[attendance.ID], discount)

	created, effects, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if created.Total() != 40 {
		t.Errorf("Expected total 40 after flat discount, got %f", created.Total())
	}

	env.service.RunEffects(context.Background(), effects)
	if env.db.discountUses["disc-1"] != 1 {
		t.Errorf("Expected discount use counted once, got %d", env.db.discountUses["disc-1"])
	}
}

func TestUsedUpDiscountSkipped(t *testing.T) {
	env := setupService(t)
	attendance := seedEventAttendance(env, 50)

	discount := &models.LineItem{
		ID:                  "disc-1",
		HostType:            models.HostEvent,
		HostID:              "evt-1",
		ItemType:            models.ItemDiscount,
		Price:               price(10),
		DiscountKind:        models.DiscountFlat,
		AllowedNumberOfUses: 5,
		TimesUsed:           5,
	}
	env.catalog.selections[attendance.ID] = append(env.catalog.selections[attendance.ID], discount)

	created, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if created.Total() != 50 {
		t.Errorf("Expected used-up discount skipped, total 50, got %f", created.Total())
	}
}

func TestCheckInBlockedWhileBalanceOutstanding(t *testing.T) {
	env := setupService(t)
	seedEventAttendance(env, 50)

	if _, _, err := env.service.CreateOrder(context.Background(), "att-1", order.OrderOverrides{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := env.service.CheckIn(context.Background(), "att-1"); !errors.Is(err, order.ErrBalanceOutstanding) {
		t.Fatalf("Expected ErrBalanceOutstanding, got %v", err)
	}
	if env.db.attendances["att-1"].CheckedInAt != nil {
		t.Error("Expected no check-in stamp while money is owed")
	}

	if _, _, err := env.service.MarkPaid(context.Background(), "att-1", models.PaymentInfo{PaymentMethod: models.MethodCash}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	attendance, err := env.service.CheckIn(context.Background(), "att-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if attendance.CheckedInAt == nil {
		t.Error("Expected check-in stamp after settling")
	}

	attendance, err = env.service.CheckOut(context.Background(), "att-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if attendance.CheckedInAt != nil {
		t.Error("Expected check-out to clear the stamp")
	}
}
