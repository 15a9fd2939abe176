package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/billing"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/user"
	"github.com/halldesk/halldesk/tests"
)

var ctx = context.Background()

type fixture struct {
	env     *testutil.Env
	sess    user.Session
	hall    booking.Hall
	stage   booking.AcademicStage
	teacher booking.Teacher
}

func newFixture(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	return fixture{
		env:     env,
		sess:    testutil.Session(owner),
		hall:    env.CreateHall(t, "Hall A"),
		stage:   env.CreateStage(t, "Grade 10"),
		teacher: env.CreateTeacher(t, "Mr Math", "MATH1", testutil.Dec("100")),
	}
}

func (f fixture) booking(t *testing.T, start, end time.Time, startTime string, custom bool) booking.Booking {
	return f.env.CreateBooking(t, testutil.BookingFixture{
		HallID: f.hall.ID, TeacherID: f.teacher.ID, StageID: f.stage.ID,
		StartTime: startTime, StartDate: start, EndDate: end,
		Fee: testutil.Dec("100"), IsCustomFee: custom,
	})
}

func assertStatusConsistent(t *testing.T, r enrollment.Registration) {
	t.Helper()
	assert.Equal(t, enrollment.PaymentStatusFor(r.PaidAmount, r.TotalFees), r.PaymentStatus, "registration %s", r.ID)
}

func TestService_SetCustomFee(t *testing.T) {
	f := newFixture(t)
	svc := f.env.BillingSvc
	start := core.NewDate(2024, time.March, 1)
	b := f.booking(t, start, time.Time{}, "16:00", false)
	s1, s2 := f.env.CreateStudent(t, "S1"), f.env.CreateStudent(t, "S2")
	r1 := f.env.CreateRegistration(t, s1.ID, b.ID, start, testutil.Dec("100"), testutil.Dec("100"))
	r2 := f.env.CreateRegistration(t, s2.ID, b.ID, start, testutil.Dec("100"), testutil.Dec("40"))
	require.Equal(t, enrollment.PaymentPaid, r1.PaymentStatus)

	t.Run("needs fee rights", func(t *testing.T) {
		sm := f.env.CreateUser(t, "Sam", "sam", user.RoleSpaceManager, true)
		_, err := svc.SetCustomFee(ctx, testutil.Session(sm), b.ID, testutil.Dec("150"))
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("negative fee", func(t *testing.T) {
		_, err := svc.SetCustomFee(ctx, f.sess, b.ID, testutil.Dec("-5"))
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := svc.SetCustomFee(ctx, f.sess, "nope", testutil.Dec("150"))
		assert.Equal(t, booking.ErrNotFound, errors.Cause(err))
	})

	t.Run("reprices every registration", func(t *testing.T) {
		res, err := svc.SetCustomFee(ctx, f.sess, b.ID, testutil.Dec("150"))
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID}, res.UpdatedBookings)
		assert.Equal(t, 2, res.UpdatedRegistrations)
		assert.Empty(t, res.Errors)

		assert.True(t, testutil.Dec("150").Equal(f.env.GetBooking(t, b.ID).ClassFees))
		for _, id := range []string{r1.ID, r2.ID} {
			got := f.env.GetRegistration(t, id)
			assert.True(t, testutil.Dec("150").Equal(got.TotalFees))
			assert.Equal(t, enrollment.PaymentPartial, got.PaymentStatus)
			assertStatusConsistent(t, got)
		}
		assert.True(t, testutil.Dec("100").Equal(f.env.GetRegistration(t, r1.ID).PaidAmount), "paid amounts are kept")
	})

	t.Run("re-running is stable", func(t *testing.T) {
		_, err := svc.SetCustomFee(ctx, f.sess, b.ID, testutil.Dec("150"))
		require.NoError(t, err)
		got := f.env.GetRegistration(t, r2.ID)
		assert.True(t, testutil.Dec("150").Equal(got.TotalFees))
		assert.Equal(t, enrollment.PaymentPartial, got.PaymentStatus)
	})

	t.Run("lowering the fee settles covered registrations", func(t *testing.T) {
		_, err := svc.SetCustomFee(ctx, f.sess, b.ID, testutil.Dec("40"))
		require.NoError(t, err)
		assert.Equal(t, enrollment.PaymentPaid, f.env.GetRegistration(t, r1.ID).PaymentStatus)
		assert.Equal(t, enrollment.PaymentPaid, f.env.GetRegistration(t, r2.ID).PaymentStatus)
	})

	t.Run("custom flag is left as is", func(t *testing.T) {
		assert.False(t, f.env.GetBooking(t, b.ID).IsCustomFee)
	})
}

func TestService_ApplyTeacherDefaultFee(t *testing.T) {
	now := time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)
	opts := billing.ApplyFeeOptions{Now: now}

	t.Run("custom fee bookings are never touched", func(t *testing.T) {
		f := newFixture(t)
		ba := f.booking(t, core.NewDate(2024, time.May, 1), time.Time{}, "10:00", false)
		bb := f.booking(t, core.NewDate(2024, time.May, 1), time.Time{}, "12:00", true)

		res, err := f.env.BillingSvc.ApplyTeacherDefaultFee(ctx, f.sess, f.teacher.ID, testutil.Dec("200"), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{ba.ID}, res.UpdatedBookings)
		assert.Equal(t, []string{bb.ID}, res.SkippedCustom)

		assert.True(t, testutil.Dec("200").Equal(f.env.GetBooking(t, ba.ID).ClassFees))
		assert.True(t, testutil.Dec("100").Equal(f.env.GetBooking(t, bb.ID).ClassFees))

		tchr, err := f.env.Bookings.GetTeacher(ctx, f.teacher.ID)
		require.NoError(t, err)
		assert.True(t, testutil.Dec("200").Equal(tchr.DefaultClassFee))
	})

	t.Run("bookings ended before the month are never touched", func(t *testing.T) {
		f := newFixture(t)
		past := f.booking(t, core.NewDate(2024, time.January, 1), core.NewDate(2024, time.April, 30), "10:00", false)
		edge := f.booking(t, core.NewDate(2024, time.January, 1), core.NewDate(2024, time.May, 1), "12:00", false)
		future := f.booking(t, core.NewDate(2024, time.July, 1), time.Time{}, "14:00", false)

		res, err := f.env.BillingSvc.ApplyTeacherDefaultFee(ctx, f.sess, f.teacher.ID, testutil.Dec("200"), opts)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{edge.ID, future.ID}, res.UpdatedBookings)
		assert.Equal(t, []string{past.ID}, res.SkippedPast)
		assert.True(t, testutil.Dec("100").Equal(f.env.GetBooking(t, past.ID).ClassFees))
	})

	t.Run("explicit booking ids", func(t *testing.T) {
		f := newFixture(t)
		b1 := f.booking(t, core.NewDate(2024, time.May, 1), time.Time{}, "10:00", false)
		b2 := f.booking(t, core.NewDate(2024, time.May, 1), time.Time{}, "12:00", false)

		res, err := f.env.BillingSvc.ApplyTeacherDefaultFee(ctx, f.sess, f.teacher.ID, testutil.Dec("200"),
			billing.ApplyFeeOptions{Now: now, BookingIDs: []string{b2.ID}})
		require.NoError(t, err)
		assert.Equal(t, []string{b2.ID}, res.UpdatedBookings)
		assert.True(t, testutil.Dec("100").Equal(f.env.GetBooking(t, b1.ID).ClassFees))
	})

	t.Run("current month registrations", func(t *testing.T) {
		f := newFixture(t)
		b := f.booking(t, core.NewDate(2024, time.April, 1), time.Time{}, "10:00", false)
		st := f.env.CreateStudent(t, "S")
		april := f.env.CreateRegistration(t, st.ID, b.ID, core.NewDate(2024, time.April, 1), testutil.Dec("100"), testutil.Dec("100"))
		may := f.env.CreateRegistration(t, st.ID, b.ID, core.NewDate(2024, time.May, 1), testutil.Dec("100"), testutil.Dec("100"))

		res, err := f.env.BillingSvc.ApplyTeacherDefaultFee(ctx, f.sess, f.teacher.ID, testutil.Dec("200"), opts)
		require.NoError(t, err)
		assert.Zero(t, res.UpdatedRegistrations, "registrations are kept without ApplyToCurrentMonth")

		opts := opts
		opts.ApplyToCurrentMonth = true
		res, err = f.env.BillingSvc.ApplyTeacherDefaultFee(ctx, f.sess, f.teacher.ID, testutil.Dec("200"), opts)
		require.NoError(t, err)
		assert.Equal(t, 1, res.UpdatedRegistrations)

		gotMay := f.env.GetRegistration(t, may.ID)
		assert.True(t, testutil.Dec("200").Equal(gotMay.TotalFees))
		assert.Equal(t, enrollment.PaymentPartial, gotMay.PaymentStatus)
		gotApril := f.env.GetRegistration(t, april.ID)
		assert.True(t, testutil.Dec("100").Equal(gotApril.TotalFees))
		assert.Equal(t, enrollment.PaymentPaid, gotApril.PaymentStatus)
	})

	t.Run("failures are collected", func(t *testing.T) {
		f := newFixture(t)
		b := f.booking(t, core.NewDate(2024, time.May, 1), time.Time{}, "10:00", false)
		s1, s2 := f.env.CreateStudent(t, "S1"), f.env.CreateStudent(t, "S2")
		bad := f.env.CreateRegistration(t, s1.ID, b.ID, core.NewDate(2024, time.May, 2), testutil.Dec("100"), testutil.Dec("0"))
		good := f.env.CreateRegistration(t, s2.ID, b.ID, core.NewDate(2024, time.May, 2), testutil.Dec("100"), testutil.Dec("0"))

		regs := &failingRegs{Repository: f.env.Regs, failID: bad.ID}
		svc := billing.NewService(f.env.Bookings, regs, f.env.Logger)
		res, err := svc.ApplyTeacherDefaultFee(ctx, f.sess, f.teacher.ID, testutil.Dec("80"),
			billing.ApplyFeeOptions{Now: now, ApplyToCurrentMonth: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.UpdatedRegistrations)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], bad.ID)
		assert.True(t, testutil.Dec("80").Equal(f.env.GetRegistration(t, good.ID).TotalFees))
		assert.True(t, testutil.Dec("100").Equal(f.env.GetRegistration(t, bad.ID).TotalFees))
	})

	t.Run("unknown teacher", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.env.BillingSvc.ApplyTeacherDefaultFee(ctx, f.sess, "nope", testutil.Dec("200"), opts)
		assert.Equal(t, booking.ErrTeacherNotFound, errors.Cause(err))
	})
}

type failingRegs struct {
	enrollment.Repository
	failID string
}

func (r *failingRegs) UpdateRegistrationFees(ctx context.Context, id string, fee decimal.Decimal, at time.Time) (enrollment.Registration, error) {
	if id == r.failID {
		return enrollment.Registration{}, errors.New("connection reset")
	}
	return r.Repository.UpdateRegistrationFees(ctx, id, fee, at)
}

// paymentBeforeReprice records a payment right before the first fee update lands.
type paymentBeforeReprice struct {
	enrollment.Repository
	pay func()
	once sync.Once
}

func (r *paymentBeforeReprice) UpdateRegistrationFees(ctx context.Context, id string, fee decimal.Decimal, at time.Time) (enrollment.Registration, error) {
	r.once.Do(r.pay)
	return r.Repository.UpdateRegistrationFees(ctx, id, fee, at)
}

func TestService_SetCustomFee_keepsConcurrentPayment(t *testing.T) {
	f := newFixture(t)
	start := core.NewDate(2024, time.March, 1)
	b := f.booking(t, start, time.Time{}, "16:00", false)
	st := f.env.CreateStudent(t, "S1")
	reg := f.env.CreateRegistration(t, st.ID, b.ID, start, testutil.Dec("100"), testutil.Dec("0"))

	regs := &paymentBeforeReprice{Repository: f.env.Regs}
	regs.pay = func() {
		_, _, err := f.env.EnrollmentSvc.RecordPayment(ctx, f.sess, reg.ID, enrollment.NewPayment{Amount: testutil.Dec("150")})
		require.NoError(t, err)
	}
	svc := billing.NewService(f.env.Bookings, regs, f.env.Logger)

	res, err := svc.SetCustomFee(ctx, f.sess, b.ID, testutil.Dec("150"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedRegistrations)

	payments, err := f.env.Regs.QueryPayments(ctx, reg.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	got := f.env.GetRegistration(t, reg.ID)
	assert.True(t, testutil.Dec("150").Equal(got.PaidAmount), "paid amount = %s", got.PaidAmount)
	assert.True(t, testutil.Dec("150").Equal(got.TotalFees))
	assert.Equal(t, enrollment.PaymentPaid, got.PaymentStatus)
}

func TestIsEligibleForDefaultFee(t *testing.T) {
	now := time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)
	window := func(start, end time.Time, custom bool) booking.Booking {
		b := booking.Booking{Status: booking.StatusActive, IsCustomFee: custom}
		b.StartDate = start
		if !end.IsZero() {
			b.EndDate.SetValid(end)
		}
		return b
	}
	tests := []struct {
		name string
		b    booking.Booking
		want bool
	}{
		{name: "open-ended, started long ago", b: window(core.NewDate(2023, time.January, 1), time.Time{}, false), want: true},
		{name: "ended the day before the month", b: window(core.NewDate(2024, time.January, 1), core.NewDate(2024, time.April, 30), false), want: false},
		{name: "ends on the first day of the month", b: window(core.NewDate(2024, time.January, 1), core.NewDate(2024, time.May, 1), false), want: true},
		{name: "starts on the last day of the month", b: window(core.NewDate(2024, time.May, 31), time.Time{}, false), want: true},
		{name: "starts next month", b: window(core.NewDate(2024, time.June, 1), time.Time{}, false), want: true},
		{name: "custom fee", b: window(core.NewDate(2024, time.May, 1), time.Time{}, true), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, billing.IsEligibleForDefaultFee(tt.b, now))
		})
	}
}
