package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"regdesk/internal/models"
)

// Membership queries backing the renewal trigger.

// RenewalByOrder returns the renewal a given order already granted for an
// option, nil when the order has not been processed yet.
func (d *DB) RenewalByOrder(ctx context.Context, orderID, optionID string) (*models.MembershipRenewal, error) {
	var renewal models.MembershipRenewal
	err := d.Bun.NewSelect().
		Model(&renewal).
		Where("order_id = ? AND membership_option_id = ?", orderID, optionID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &renewal, nil
}

// LatestRenewal returns the user's renewal with the furthest expiry for an
// option, nil when they never held one.
func (d *DB) LatestRenewal(ctx context.Context, userID, optionID string) (*models.MembershipRenewal, error) {
	var renewal models.MembershipRenewal
	err := d.Bun.NewSelect().
		Model(&renewal).
		Where("user_id = ? AND membership_option_id = ?", userID, optionID).
		Order("expires_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &renewal, nil
}

func (d *DB) CreateRenewal(ctx context.Context, renewal *models.MembershipRenewal) error {
	_, err := d.Bun.NewInsert().Model(renewal).Exec(ctx)
	return err
}

// HasActiveMembership reports whether the user holds an unexpired renewal
// for any of the organization's membership options.
func (d *DB) HasActiveMembership(ctx context.Context, userID, organizationID string, at time.Time) (bool, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.MembershipRenewal)(nil)).
		Join("JOIN line_items li ON li.id = membership_renewal.membership_option_id").
		Where("membership_renewal.user_id = ?", userID).
		Where("li.host_type = ? AND li.host_id = ?", models.HostOrganization, organizationID).
		Where("membership_renewal.start_date <= ? AND membership_renewal.expires_at > ?", at, at).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MembershipOption fetches the catalog item behind a renewal.
func (d *DB) MembershipOption(ctx context.Context, id string) (*models.LineItem, error) {
	var item models.LineItem
	err := d.Bun.NewSelect().
		Model(&item).
		Where("id = ? AND item_type = ?", id, models.ItemMembershipOption).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MembershipDiscount returns the organization's member-perk discount, nil
// when it does not offer one.
func (d *DB) MembershipDiscount(ctx context.Context, organizationID string) (*models.LineItem, error) {
	var discounts []*models.LineItem
	err := d.Bun.NewSelect().
		Model(&discounts).
		Where("host_type = ? AND host_id = ? AND item_type = ?",
			models.HostOrganization, organizationID, models.ItemDiscount).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, discount := range discounts {
		if discount.Metadata.ForMembers && !discount.Disabled {
			return discount, nil
		}
	}
	return nil, nil
}
