package db

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"regdesk/internal/models"
)

// Migrate creates every table the settlement engine reads or writes.
func Migrate(db *bun.DB) {
	ctx := context.Background()

	tables := []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.Organization)(nil),
		(*models.Integration)(nil),
		(*models.PricingTier)(nil),
		(*models.LineItem)(nil),
		(*models.Attendance)(nil),
		(*models.AttendanceLineItem)(nil),
		(*models.Order)(nil),
		(*models.OrderLineItem)(nil),
		(*models.MembershipRenewal)(nil),
	}

	for _, table := range tables {
		if _, err := db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("create table failed: %v", err)
		}
	}

	log.Println("database tables ready")
}
