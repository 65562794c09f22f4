package order

import (
	"context"
	"fmt"

	"regdesk/internal/models"
)

// CheckIn stamps an attendance as present at the door. Refused while the
// attendance owes money: the desk settles first, then scans again.
func (s *OrderService) CheckIn(ctx context.Context, attendanceID string) (*models.Attendance, error) {
	attendance, err := s.DB.GetAttendance(ctx, attendanceID)
	if err != nil {
		return nil, fmt.Errorf("load attendance %s: %w", attendanceID, err)
	}

	owed, err := s.AmountOwed(ctx, attendanceID)
	if err != nil {
		return nil, err
	}
	if owed > 0 {
		return attendance, fmt.Errorf("attendance %s: %w", attendanceID, ErrBalanceOutstanding)
	}

	attendance.CheckIn(s.now())
	if err := s.DB.UpdateAttendance(ctx, attendance); err != nil {
		return nil, fmt.Errorf("persist check-in for %s: %w", attendanceID, err)
	}
	s.logger.Info("CHECKIN", "attendance "+attendanceID+" checked in")
	return attendance, nil
}

// CheckOut clears the check-in stamp, for a mistaken scan.
func (s *OrderService) CheckOut(ctx context.Context, attendanceID string) (*models.Attendance, error) {
	attendance, err := s.DB.GetAttendance(ctx, attendanceID)
	if err != nil {
		return nil, fmt.Errorf("load attendance %s: %w", attendanceID, err)
	}

	attendance.CheckOut()
	if err := s.DB.UpdateAttendance(ctx, attendance); err != nil {
		return nil, fmt.Errorf("persist check-out for %s: %w", attendanceID, err)
	}
	return attendance, nil
}
