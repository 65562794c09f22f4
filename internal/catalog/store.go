package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"regdesk/internal/models"
)

// Store is the read side of the catalog.
type Store struct {
	Bun *bun.DB
}

// Find fetches one catalog item by id.
func (s *Store) Find(ctx context.Context, id string) (*models.LineItem, error) {
	var item models.LineItem
	err := s.Bun.NewSelect().
		Model(&item).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: find %s: %w", id, err)
	}
	return &item, nil
}

// ListForAttendance collects every catalog item an attendance has selected:
// its package, then the items linked through attendance_line_items
// (competitions, shirts, extras, discounts).
func (s *Store) ListForAttendance(ctx context.Context, a *models.Attendance) ([]*models.LineItem, error) {
	var items []*models.LineItem

	if a.PackageID != "" {
		pkg, err := s.Find(ctx, a.PackageID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if pkg != nil {
			items = append(items, pkg)
		}
	}

	var selected []*models.LineItem
	err := s.Bun.NewSelect().
		Model(&selected).
		Join("JOIN attendance_line_items ali ON ali.line_item_id = line_item.id").
		Where("ali.attendance_id = ?", a.ID).
		Order("ali.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: items for attendance %s: %w", a.ID, err)
	}

	return append(items, selected...), nil
}
