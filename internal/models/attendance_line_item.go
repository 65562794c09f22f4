package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AttendanceLineItem links an attendance to a catalog item it selected
// during registration (shirts, competitions, discounts, extras). The package
// selection lives on the attendance itself.
type AttendanceLineItem struct {
	bun.BaseModel `bun:"table:attendance_line_items"`

	ID           string    `bun:"id,pk" json:"id"`
	AttendanceID string    `bun:"attendance_id,notnull" json:"attendance_id"`
	LineItemID   string    `bun:"line_item_id,notnull" json:"line_item_id"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
