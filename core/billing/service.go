// Package billing propagates fee changes from bookings and teachers onto student registrations.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/user"
)

type (
	// FeeChangeResult reports what a fee propagation touched. Per-registration
	// failures are collected in Errors and do not stop the propagation.
	FeeChangeResult struct {
		UpdatedBookings      []string `json:"updated_bookings"`
		SkippedCustom        []string `json:"skipped_custom"`
		SkippedPast          []string `json:"skipped_past"`
		UpdatedRegistrations int      `json:"updated_registrations"`
		Errors               []string `json:"errors"`
	}

	// ApplyFeeOptions tunes ApplyTeacherDefaultFee. A zero Now means the session's time.
	ApplyFeeOptions struct {
		BookingIDs          []string  `json:"booking_ids"`
		ApplyToCurrentMonth bool      `json:"apply_to_current_month"`
		Now                 time.Time `json:"-"`
	}

	Service struct {
		bookings booking.Repository
		regs     enrollment.Repository
		logger   core.Logger
	}
)

func newFeeChangeResult() FeeChangeResult {
	return FeeChangeResult{
		UpdatedBookings: []string{},
		SkippedCustom:   []string{},
		SkippedPast:     []string{},
		Errors:          []string{},
	}
}

func NewService(bookings booking.Repository, regs enrollment.Repository, logger core.Logger) *Service {
	return &Service{
		bookings: bookings,
		regs:     regs,
		logger:   logger,
	}
}

func validateFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return core.NewFieldValidationError("fee", "fee cannot be negative")
	}
	return nil
}

// SetCustomFee sets the fee of a booking and reprices all of its registrations,
// keeping what was already paid. The is_custom_fee flag is left as is.
// Re-running it with the same fee changes nothing.
func (svc *Service) SetCustomFee(ctx context.Context, sess user.Session, bookingID string, fee decimal.Decimal) (FeeChangeResult, error) {
	res := newFeeChangeResult()
	if err := sess.Require(user.ActionManageFees); err != nil {
		return res, err
	}
	if err := validateFee(fee); err != nil {
		return res, err
	}
	b, err := svc.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return res, err
	}

	if _, err = svc.bookings.SetClassFees(ctx, fee, b.ID); err != nil {
		return res, errors.Wrap(err, "setting booking fee")
	}
	res.UpdatedBookings = append(res.UpdatedBookings, b.ID)

	regs, err := svc.regs.QueryRegistrations(ctx, enrollment.RegistrationFilter{BookingIDs: []string{b.ID}})
	if err != nil {
		return res, errors.Wrap(err, "querying registrations")
	}
	svc.repriceRegistrations(ctx, regs, fee, &res)
	return res, nil
}

// ApplyTeacherDefaultFee changes the default fee of a teacher and copies it onto the
// teacher's eligible bookings: those without a custom fee whose window overlaps the
// month of opts.Now, or that start after opts.Now. With ApplyToCurrentMonth, the
// registrations of those bookings dated in that month are repriced too.
func (svc *Service) ApplyTeacherDefaultFee(ctx context.Context, sess user.Session, teacherID string, fee decimal.Decimal, opts ApplyFeeOptions) (FeeChangeResult, error) {
	res := newFeeChangeResult()
	if err := sess.Require(user.ActionManageFees); err != nil {
		return res, err
	}
	if err := validateFee(fee); err != nil {
		return res, err
	}

	t, err := svc.bookings.GetTeacher(ctx, teacherID)
	if err != nil {
		return res, err
	}
	t.DefaultClassFee = fee
	t.UpdatedAt = time.Now().UTC()
	if _, err = svc.bookings.UpdateTeacher(ctx, t); err != nil {
		return res, errors.Wrap(err, "updating teacher default fee")
	}

	filter := booking.QueryFilter{TeacherID: t.ID}
	if len(opts.BookingIDs) > 0 {
		filter.IDs = opts.BookingIDs
	}
	candidates, err := svc.bookings.QueryBookings(ctx, filter)
	if err != nil {
		return res, errors.Wrap(err, "querying teacher bookings")
	}

	now := opts.Now
	if now.IsZero() {
		now = sess.Now
	}
	if now.IsZero() {
		now = core.NowFunc()
	}
	monthStart, monthEnd := core.MonthOf(now)

	var eligible []string
	for _, b := range candidates {
		switch {
		case b.IsCustomFee:
			res.SkippedCustom = append(res.SkippedCustom, b.ID)
		case IsEligibleForDefaultFee(b, now):
			eligible = append(eligible, b.ID)
		default:
			res.SkippedPast = append(res.SkippedPast, b.ID)
		}
	}
	if len(eligible) == 0 {
		return res, nil
	}

	if _, err = svc.bookings.SetClassFees(ctx, fee, eligible...); err != nil {
		return res, errors.Wrap(err, "setting booking fees")
	}
	res.UpdatedBookings = append(res.UpdatedBookings, eligible...)

	if !opts.ApplyToCurrentMonth {
		return res, nil
	}
	regs, err := svc.regs.QueryRegistrations(ctx, enrollment.RegistrationFilter{
		BookingIDs: eligible,
		From:       core.DateOf(monthStart),
		To:         core.DateOf(monthEnd),
	})
	if err != nil {
		return res, errors.Wrap(err, "querying current month registrations")
	}
	svc.repriceRegistrations(ctx, regs, fee, &res)
	return res, nil
}

// IsEligibleForDefaultFee reports whether a teacher default fee change reaches booking b,
// with now as the reference date.
func IsEligibleForDefaultFee(b booking.Booking, now time.Time) bool {
	if b.IsCustomFee {
		return false
	}
	monthStart, monthEnd := core.MonthOf(now)
	return b.Overlaps(monthStart, monthEnd) || b.StartsAfter(now)
}

func (svc *Service) repriceRegistrations(ctx context.Context, regs []enrollment.Registration, fee decimal.Decimal, res *FeeChangeResult) {
	for _, r := range regs {
		if _, err := svc.regs.UpdateRegistrationFees(ctx, r.ID, fee, time.Now().UTC()); err != nil {
			svc.logger.Warn("repricing registration "+r.ID, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", r.ID, err))
			continue
		}
		res.UpdatedRegistrations++
	}
}
