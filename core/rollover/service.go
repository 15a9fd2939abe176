// Package rollover carries student registrations forward into a new month.
package rollover

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/user"
)

const (
	msgBookingNotFound  = "booking not found"
	msgNotActiveInMonth = "booking not active in target month"
)

type (
	MonthlyRequest struct {
		BookingID       string     `json:"booking_id"`
		Year            int        `json:"year" validate:"required,min=2000,max=9999"`
		Month           time.Month `json:"month" validate:"required,min=1,max=12"`
		ResetAttendance bool       `json:"reset_attendance"`
	}

	// Result of a single booking rollover. A booking that is missing or not active
	// in the target month is reported through NotActive/Message, not as an error.
	Result struct {
		BookingID string `json:"booking_id"`
		Created   int    `json:"created"`
		NotActive bool   `json:"not_active"`
		Message   string `json:"message,omitempty"`
	}

	// BatchResult of a rollover over all active bookings.
	BatchResult struct {
		Year      int        `json:"year"`
		Month     time.Month `json:"month"`
		Processed int        `json:"processed"`
		Created   int        `json:"created"`
		Skipped   int        `json:"skipped"`
		Errors    []string   `json:"errors"`
	}

	Service struct {
		bookings booking.Repository
		regs     enrollment.Repository
		logger   core.Logger
	}
)

func NewService(bookings booking.Repository, regs enrollment.Repository, logger core.Logger) *Service {
	return &Service{
		bookings: bookings,
		regs:     regs,
		logger:   logger,
	}
}

// CreateMonthlyRegistrations registers again, in the target month, every student of the
// booking that is not registered there yet, using the fee of their latest registration.
// It is safe to re-run: students already registered in the month are skipped.
// On a partial failure the number of registrations created so far is returned with the error.
func (svc *Service) CreateMonthlyRegistrations(ctx context.Context, sess user.Session, req MonthlyRequest) (Result, error) {
	res := Result{BookingID: req.BookingID}
	if err := sess.Require(user.ActionRunRollover); err != nil {
		return res, err
	}
	if req.Month < time.January || req.Month > time.December || req.Year <= 0 {
		return res, core.NewFieldValidationError("month", "invalid target month")
	}

	b, err := svc.bookings.GetBooking(ctx, req.BookingID)
	if err != nil {
		if errors.Cause(err) == booking.ErrNotFound {
			res.NotActive = true
			res.Message = msgBookingNotFound
			return res, nil
		}
		return res, errors.Wrap(err, "loading booking")
	}

	first, last := core.MonthRange(req.Year, req.Month)
	if !b.ActiveIn(first, last) {
		res.NotActive = true
		res.Message = msgNotActiveInMonth
		return res, nil
	}

	history, err := svc.regs.QueryRegistrations(ctx, enrollment.RegistrationFilter{BookingIDs: []string{b.ID}})
	if err != nil {
		return res, errors.Wrap(err, "querying booking registrations")
	}
	registered := make(map[string]bool)
	var templates []enrollment.Registration
	seen := make(map[string]bool)
	for _, r := range history {
		if core.DateWithin(r.RegistrationDate, first, last) {
			registered[r.StudentID] = true
		}
		// history is newest first: the first row of a student is their latest
		if !seen[r.StudentID] {
			seen[r.StudentID] = true
			templates = append(templates, r)
		}
	}

	for _, tmpl := range templates {
		if registered[tmpl.StudentID] {
			continue
		}
		fee := tmpl.TotalFees
		if fee.IsZero() {
			fee = b.ClassFees
		}
		now := time.Now().UTC()
		r := enrollment.Registration{
			ID:               uuid.New().String(),
			StudentID:        tmpl.StudentID,
			BookingID:        b.ID,
			RegistrationDate: first,
			PaidAmount:       decimal.Zero,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		r.SetTotalFees(fee)
		if _, err = svc.regs.CreateRegistration(ctx, r); err != nil {
			return res, errors.Wrapf(err, "registering student %s", tmpl.StudentID)
		}
		res.Created++
	}

	if req.ResetAttendance {
		if err = svc.resetAttendance(ctx, b.ID, first, last); err != nil {
			return res, err
		}
	}
	return res, nil
}

// resetAttendance clears the target month attendance of the booking's registrations in that month.
func (svc *Service) resetAttendance(ctx context.Context, bookingID string, first, last time.Time) error {
	monthRegs, err := svc.regs.QueryRegistrations(ctx, enrollment.RegistrationFilter{
		BookingIDs: []string{bookingID},
		From:       core.DateOf(first),
		To:         core.DateOf(last),
	})
	if err != nil {
		return errors.Wrap(err, "querying target month registrations")
	}
	if len(monthRegs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(monthRegs))
	for _, r := range monthRegs {
		ids = append(ids, r.ID)
	}
	_, err = svc.regs.DeleteAttendance(ctx, enrollment.AttendanceFilter{RegistrationIDs: ids, From: first, To: last})
	return errors.Wrap(err, "resetting attendance")
}

// ResetAllToNextMonth rolls every active booking over to the month after now.
// Failing bookings are reported in Errors and do not stop the batch.
func (svc *Service) ResetAllToNextMonth(ctx context.Context, sess user.Session, now time.Time, resetAttendance bool) (BatchResult, error) {
	year, month := core.NextMonth(now)
	res := BatchResult{Year: year, Month: month, Errors: []string{}}
	if err := sess.Require(user.ActionRunRollover); err != nil {
		return res, err
	}

	bookings, err := svc.bookings.QueryBookings(ctx, booking.QueryFilter{Status: booking.StatusActive})
	if err != nil {
		return res, errors.Wrap(err, "querying active bookings")
	}

	for _, b := range bookings {
		if err = ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}
		r, err := svc.CreateMonthlyRegistrations(ctx, sess, MonthlyRequest{
			BookingID:       b.ID,
			Year:            year,
			Month:           month,
			ResetAttendance: resetAttendance,
		})
		res.Processed++
		res.Created += r.Created
		if err != nil {
			svc.logger.Error(fmt.Sprintf("rolling over booking %s", b.ID), err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", b.ID, err))
			continue
		}
		if r.NotActive {
			res.Skipped++
		}
	}
	return res, nil
}
