package rollover_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/user"
	"github.com/halldesk/halldesk/tests"
)

var ctx = context.Background()

type fixture struct {
	env  *testutil.Env
	sess user.Session
	bf   testutil.BookingFixture
}

func newFixture(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	sm := env.CreateUser(t, "Sam Space", "sam", user.RoleSpaceManager, true)
	return fixture{
		env:  env,
		sess: testutil.Session(sm),
		bf: testutil.BookingFixture{
			HallID:    env.CreateHall(t, "Hall A").ID,
			TeacherID: env.CreateTeacher(t, "Mr Math", "MATH1", testutil.Dec("100")).ID,
			StageID:   env.CreateStage(t, "Grade 10").ID,
			StartDate: core.NewDate(2024, time.January, 1),
			Fee:       testutil.Dec("100"),
		},
	}
}

func (f fixture) monthRegs(t *testing.T, bookingID string, year int, month time.Month) []enrollment.Registration {
	t.Helper()
	first, last := core.MonthRange(year, month)
	regs, err := f.env.Regs.QueryRegistrations(ctx, enrollment.RegistrationFilter{
		BookingIDs: []string{bookingID}, From: core.DateOf(first), To: core.DateOf(last),
	})
	require.NoError(t, err)
	return regs
}

func TestService_CreateMonthlyRegistrations(t *testing.T) {
	f := newFixture(t)
	svc := f.env.RolloverSvc
	b := f.env.CreateBooking(t, f.bf)

	s1, s2, s3 := f.env.CreateStudent(t, "S1"), f.env.CreateStudent(t, "S2"), f.env.CreateStudent(t, "S3")
	f.env.CreateRegistration(t, s1.ID, b.ID, core.NewDate(2024, time.January, 5), testutil.Dec("100"), testutil.Dec("100"))
	f.env.CreateRegistration(t, s1.ID, b.ID, core.NewDate(2024, time.February, 1), testutil.Dec("120"), testutil.Dec("120"))
	f.env.CreateRegistration(t, s2.ID, b.ID, core.NewDate(2024, time.January, 9), testutil.Dec("0"), testutil.Dec("0"))
	// s3 is already registered in March
	f.env.CreateRegistration(t, s3.ID, b.ID, core.NewDate(2024, time.January, 9), testutil.Dec("90"), testutil.Dec("0"))
	s3March := f.env.CreateRegistration(t, s3.ID, b.ID, core.NewDate(2024, time.March, 12), testutil.Dec("90"), testutil.Dec("30"))

	march := rollover.MonthlyRequest{BookingID: b.ID, Year: 2024, Month: time.March}

	t.Run("needs rollover rights", func(t *testing.T) {
		teacher := f.env.CreateUser(t, "Carl", "carl", user.RoleTeacher, true)
		_, err := svc.CreateMonthlyRegistrations(ctx, testutil.Session(teacher), march)
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("invalid month", func(t *testing.T) {
		_, err := svc.CreateMonthlyRegistrations(ctx, f.sess, rollover.MonthlyRequest{BookingID: b.ID, Year: 2024, Month: 13})
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("registers missing students with their latest fee", func(t *testing.T) {
		res, err := svc.CreateMonthlyRegistrations(ctx, f.sess, march)
		require.NoError(t, err)
		assert.Equal(t, rollover.Result{BookingID: b.ID, Created: 2}, res)

		regs := f.monthRegs(t, b.ID, 2024, time.March)
		require.Len(t, regs, 3)
		byStudent := make(map[string]enrollment.Registration)
		for _, r := range regs {
			_, dup := byStudent[r.StudentID]
			assert.False(t, dup, "one registration per student and month")
			byStudent[r.StudentID] = r
		}

		r1 := byStudent[s1.ID]
		assert.True(t, testutil.Dec("120").Equal(r1.TotalFees), "latest fee of the student")
		assert.True(t, r1.PaidAmount.IsZero())
		assert.Equal(t, enrollment.PaymentPending, r1.PaymentStatus)
		assert.True(t, core.NewDate(2024, time.March, 1).Equal(r1.RegistrationDate))

		assert.True(t, testutil.Dec("100").Equal(byStudent[s2.ID].TotalFees), "booking fee when the last fee is zero")
		assert.Equal(t, s3March.ID, byStudent[s3.ID].ID, "existing registration is kept")
	})

	t.Run("idempotent", func(t *testing.T) {
		res, err := svc.CreateMonthlyRegistrations(ctx, f.sess, march)
		require.NoError(t, err)
		assert.Zero(t, res.Created)
		assert.Len(t, f.monthRegs(t, b.ID, 2024, time.March), 3)
	})

	t.Run("reset attendance", func(t *testing.T) {
		_, err := f.env.Regs.UpsertAttendance(ctx, enrollment.AttendanceRecord{
			ID: uuid.New().String(), RegistrationID: s3March.ID, Date: core.NewDate(2024, time.March, 13),
			Status: enrollment.AttendancePresent, CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		_, err = f.env.Regs.UpsertAttendance(ctx, enrollment.AttendanceRecord{
			ID: uuid.New().String(), RegistrationID: s3March.ID, Date: core.NewDate(2024, time.April, 2),
			Status: enrollment.AttendancePresent, CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)

		req := march
		req.ResetAttendance = true
		res, err := svc.CreateMonthlyRegistrations(ctx, f.sess, req)
		require.NoError(t, err)
		assert.Zero(t, res.Created)

		recs, err := f.env.Regs.QueryAttendance(ctx, enrollment.AttendanceFilter{RegistrationIDs: []string{s3March.ID}})
		require.NoError(t, err)
		require.Len(t, recs, 1, "only the target month is cleared")
		assert.Equal(t, time.April, recs[0].Date.Month())
	})
}

func TestService_CreateMonthlyRegistrations_notActive(t *testing.T) {
	f := newFixture(t)
	svc := f.env.RolloverSvc

	ended := f.bf
	ended.EndDate = core.NewDate(2024, time.February, 29)
	endedB := f.env.CreateBooking(t, ended)

	cancelled := f.bf
	cancelled.StartTime = "18:00"
	cancelled.Status = booking.StatusCancelled
	cancelledB := f.env.CreateBooking(t, cancelled)

	st := f.env.CreateStudent(t, "S")
	f.env.CreateRegistration(t, st.ID, endedB.ID, core.NewDate(2024, time.February, 1), testutil.Dec("100"), testutil.Dec("0"))
	f.env.CreateRegistration(t, st.ID, cancelledB.ID, core.NewDate(2024, time.February, 1), testutil.Dec("100"), testutil.Dec("0"))

	tests := []struct {
		name      string
		bookingID string
		wantMsg   string
	}{
		{name: "window ended", bookingID: endedB.ID, wantMsg: "booking not active in target month"},
		{name: "cancelled", bookingID: cancelledB.ID, wantMsg: "booking not active in target month"},
		{name: "missing", bookingID: "nope", wantMsg: "booking not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.CreateMonthlyRegistrations(ctx, f.sess, rollover.MonthlyRequest{BookingID: tt.bookingID, Year: 2024, Month: time.March})
			require.NoError(t, err)
			assert.True(t, res.NotActive)
			assert.Zero(t, res.Created)
			assert.Equal(t, tt.wantMsg, res.Message)
			if tt.bookingID != "nope" {
				assert.Empty(t, f.monthRegs(t, tt.bookingID, 2024, time.March))
			}
		})
	}
}

type failingRegs struct {
	enrollment.Repository
	failBooking string
}

func (r *failingRegs) CreateRegistration(ctx context.Context, reg enrollment.Registration) (enrollment.Registration, error) {
	if reg.BookingID == r.failBooking {
		return enrollment.Registration{}, errors.New("connection reset")
	}
	return r.Repository.CreateRegistration(ctx, reg)
}

func TestService_ResetAllToNextMonth(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, time.December, 20, 9, 0, 0, 0, time.UTC)

	ok := f.env.CreateBooking(t, f.bf)
	broken := f.bf
	broken.StartTime = "18:00"
	brokenB := f.env.CreateBooking(t, broken)
	ended := f.bf
	ended.StartTime = "20:00"
	ended.EndDate = core.NewDate(2024, time.December, 31)
	f.env.CreateBooking(t, ended)
	inactive := f.bf
	inactive.StartTime = "08:00"
	inactive.Status = booking.StatusCompleted
	f.env.CreateBooking(t, inactive)

	st := f.env.CreateStudent(t, "S")
	f.env.CreateRegistration(t, st.ID, ok.ID, core.NewDate(2024, time.December, 1), testutil.Dec("100"), testutil.Dec("0"))
	f.env.CreateRegistration(t, st.ID, brokenB.ID, core.NewDate(2024, time.December, 1), testutil.Dec("100"), testutil.Dec("0"))

	svc := rollover.NewService(f.env.Bookings, &failingRegs{Repository: f.env.Regs, failBooking: brokenB.ID}, f.env.Logger)

	t.Run("needs rollover rights", func(t *testing.T) {
		ro := f.env.CreateUser(t, "Rita", "rita", user.RoleReadOnly, true)
		_, err := svc.ResetAllToNextMonth(ctx, testutil.Session(ro), now, false)
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("best effort over active bookings", func(t *testing.T) {
		res, err := svc.ResetAllToNextMonth(ctx, f.sess, now, false)
		require.NoError(t, err)
		assert.Equal(t, 2025, res.Year)
		assert.Equal(t, time.January, res.Month)
		assert.Equal(t, 3, res.Processed)
		assert.Equal(t, 1, res.Created)
		assert.Equal(t, 1, res.Skipped)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], brokenB.ID)

		assert.Len(t, f.monthRegs(t, ok.ID, 2025, time.January), 1)
	})

	t.Run("system session", func(t *testing.T) {
		res, err := f.env.RolloverSvc.ResetAllToNextMonth(ctx, user.SystemSession(), now, false)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Created, "the broken booking is rolled over on retry")
		assert.Empty(t, res.Errors)
	})
}
