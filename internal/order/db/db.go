package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"regdesk/internal/models"
)

// ErrConflict reports a lost optimistic-concurrency race: the row changed
// under us. Callers must re-fetch and retry the whole operation.
var ErrConflict = errors.New("db: write conflict")

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// GetOrderByID fetches one order with its line items.
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Relation("LineItems").
		Where("\"order\".id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrdersByAttendance fetches every order for an attendance, oldest first.
func (d *DB) OrdersByAttendance(ctx context.Context, attendanceID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("LineItems").
		Where("\"order\".attendance_id = ?", attendanceID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UnpaidOrderByAttendance returns the most recent unpaid order for an
// attendance, or nil when every order is settled.
func (d *DB) UnpaidOrderByAttendance(ctx context.Context, attendanceID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Relation("LineItems").
		Where("\"order\".attendance_id = ? AND \"order\".paid = ?", attendanceID, false).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrder inserts an order together with its line items in one
// transaction. A failure leaves no order row behind.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		for _, li := range order.LineItems {
			li.OrderID = order.ID
		}
		if len(order.LineItems) > 0 {
			if _, err := tx.NewInsert().Model(&order.LineItems).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateOrder persists the order's settlement fields with an optimistic
// version check. Line item snapshots are immutable and not touched here.
func (d *DB) UpdateOrder(ctx context.Context, order *models.Order) error {
	prev := order.LockVersion
	order.LockVersion = prev + 1
	order.UpdatedAt = time.Now()

	res, err := d.Bun.NewUpdate().
		Model(order).
		Column("paid", "paid_amount", "net_amount_received", "total_fee_amount",
			"payment_method", "payer_id", "is_fee_absorbed", "payment_received_at",
			"metadata", "lock_version", "updated_at").
		Where("id = ? AND lock_version = ?", order.ID, prev).
		Exec(ctx)
	if err != nil {
		order.LockVersion = prev
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		order.LockVersion = prev
		return fmt.Errorf("order %s: %w", order.ID, ErrConflict)
	}
	return nil
}

// ---------------- ATTENDANCES ----------------

func (d *DB) GetAttendance(ctx context.Context, id string) (*models.Attendance, error) {
	var attendance models.Attendance
	err := d.Bun.NewSelect().
		Model(&attendance).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &attendance, nil
}

func (d *DB) UpdateAttendance(ctx context.Context, a *models.Attendance) error {
	a.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(a).
		Column("checked_in_at", "metadata", "transferred_to_name",
			"transferred_to_user_id", "transferred_at", "transfer_reason", "updated_at").
		Where("id = ?", a.ID).
		Exec(ctx)
	return err
}

// RegistrantCount counts live registrations at a host, which drives
// registrant-threshold pricing tiers.
func (d *DB) RegistrantCount(ctx context.Context, host models.HostRef) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Attendance)(nil)).
		Where("host_type = ? AND host_id = ?", host.Kind, host.ID).
		Count(ctx)
}

// ---------------- HOSTS ----------------

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	err := d.Bun.NewSelect().
		Model(&org).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// MakeAttendeesPayFees reports whether the host passes processor fees
// through to attendees.
func (d *DB) MakeAttendeesPayFees(ctx context.Context, host models.HostRef) (bool, error) {
	switch host.Kind {
	case models.HostEvent:
		event, err := d.GetEvent(ctx, host.ID)
		if err != nil {
			return false, err
		}
		return event.MakeAttendeesPayFees, nil
	case models.HostOrganization:
		org, err := d.GetOrganization(ctx, host.ID)
		if err != nil {
			return false, err
		}
		return org.MakeAttendeesPayFees, nil
	}
	return false, fmt.Errorf("unknown host kind %q", host.Kind)
}

// IntegrationFor returns the host's processor integration, nil when none is
// connected.
func (d *DB) IntegrationFor(ctx context.Context, host models.HostRef, kind string) (*models.Integration, error) {
	var integration models.Integration
	err := d.Bun.NewSelect().
		Model(&integration).
		Where("owner_type = ? AND owner_id = ? AND kind = ?", host.Kind, host.ID, kind).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

// ---------------- PRICING ----------------

func (d *DB) GetPricingTier(ctx context.Context, id string) (*models.PricingTier, error) {
	var tier models.PricingTier
	err := d.Bun.NewSelect().
		Model(&tier).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (d *DB) TiersForEvent(ctx context.Context, eventID string) ([]*models.PricingTier, error) {
	var tiers []*models.PricingTier
	err := d.Bun.NewSelect().
		Model(&tiers).
		Where("event_id = ?", eventID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

// ---------------- USERS ----------------

// GetUser returns nil without error for a blank id (userless registration).
func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, nil
	}
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ---------------- DISCOUNTS ----------------

// IncrementDiscountUsage bumps a discount's consumption counter.
func (d *DB) IncrementDiscountUsage(ctx context.Context, discountID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.LineItem)(nil)).
		Set("times_used = times_used + 1").
		Where("id = ?", discountID).
		Exec(ctx)
	return err
}
