package report_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/report"
	"github.com/halldesk/halldesk/core/settlement"
	"github.com/halldesk/halldesk/core/user"
	"github.com/halldesk/halldesk/tests"
)

var ctx = context.Background()

func TestService_MonthlyBookings(t *testing.T) {
	env := testutil.NewEnv(t)
	hall := env.CreateHall(t, "Hall A")
	stage := env.CreateStage(t, "Grade 10")
	math := env.CreateTeacher(t, "Mr Math", "MATH1", testutil.Dec("100"))
	art := env.CreateTeacher(t, "Ms Art", "ART1", testutil.Dec("50"))
	jan := core.NewDate(2024, time.January, 1)

	mathB := env.CreateBooking(t, testutil.BookingFixture{HallID: hall.ID, TeacherID: math.ID, StageID: stage.ID, StartDate: jan, Fee: testutil.Dec("100")})
	artB := env.CreateBooking(t, testutil.BookingFixture{HallID: hall.ID, TeacherID: art.ID, StageID: stage.ID, StartDate: jan, StartTime: "18:00", Fee: testutil.Dec("50")})
	// cancelled and empty in May: not listed
	env.CreateBooking(t, testutil.BookingFixture{HallID: hall.ID, TeacherID: art.ID, StageID: stage.ID, StartDate: jan, StartTime: "08:00", Status: booking.StatusCancelled})

	s1, s2, s3 := env.CreateStudent(t, "S1"), env.CreateStudent(t, "S2"), env.CreateStudent(t, "S3")
	may := core.NewDate(2024, time.May, 1)
	env.CreateRegistration(t, s1.ID, mathB.ID, may, testutil.Dec("100"), testutil.Dec("100"))
	env.CreateRegistration(t, s2.ID, mathB.ID, may, testutil.Dec("100"), testutil.Dec("40"))
	env.CreateRegistration(t, s3.ID, mathB.ID, may, testutil.Dec("100"), testutil.Dec("0"))
	env.CreateRegistration(t, s1.ID, mathB.ID, core.NewDate(2024, time.April, 1), testutil.Dec("100"), testutil.Dec("0"))

	rep, err := env.ReportSvc.MonthlyBookings(ctx, 2024, time.May)
	require.NoError(t, err)
	require.Len(t, rep.Lines, 2)

	mathLine, artLine := rep.Lines[1], rep.Lines[0]
	assert.Equal(t, "Ms Art", artLine.TeacherName, "sorted by teacher name")
	assert.Equal(t, artB.ID, artLine.BookingID)
	assert.Zero(t, artLine.Registrations)
	assert.True(t, artLine.TotalFees.IsZero())

	assert.Equal(t, "Hall A", mathLine.HallName)
	assert.Equal(t, 3, mathLine.Registrations)
	assert.Equal(t, 1, mathLine.PaidCount)
	assert.Equal(t, 1, mathLine.PartialCount)
	assert.Equal(t, 1, mathLine.PendingCount)
	assert.True(t, testutil.Dec("300").Equal(mathLine.TotalFees))
	assert.True(t, testutil.Dec("140").Equal(mathLine.Paid))
	assert.True(t, testutil.Dec("160").Equal(mathLine.Outstanding))
	assert.True(t, testutil.Dec("160").Equal(rep.Totals.Outstanding))
	assert.Equal(t, 3, rep.Totals.Registrations)

	var buf bytes.Buffer
	require.NoError(t, report.WriteMonthlyBookingsXLSX(&buf, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"2024-05"}, f.GetSheetList())

	cell := func(axis string) string {
		v, err := f.GetCellValue("2024-05", axis)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Teacher", cell("B1"))
	assert.Equal(t, "Ms Art", cell("B2"))
	assert.Equal(t, "Mr Math", cell("B3"))
	assert.Equal(t, "3", cell("E3"))
	assert.Equal(t, "Total", cell("A4"))
	assert.Equal(t, "160", cell("H4"))
}

func TestService_Settlements(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	env.CreateSettlement(t, owner.ID, core.NewDate(2024, time.May, 2), settlement.TypeIncome, testutil.Dec("300"), "Hall rent")
	env.CreateSettlement(t, owner.ID, core.NewDate(2024, time.May, 2), settlement.TypeExpense, testutil.Dec("120"), "Cleaning")
	env.CreateSettlement(t, owner.ID, core.NewDate(2024, time.June, 1), settlement.TypeIncome, testutil.Dec("50"), "Hall rent")

	from, to := core.MonthRange(2024, time.May)
	_, err := env.ReportSvc.Settlements(ctx, to, from)
	assert.True(t, core.IsValidationError(err))

	sum, err := env.ReportSvc.Settlements(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, testutil.Dec("180").Equal(sum.Net))

	var buf bytes.Buffer
	require.NoError(t, report.WriteSettlementsXLSX(&buf, sum))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Daily", "Categories"}, f.GetSheetList())

	v, err := f.GetCellValue("Daily", "A2")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", v)
	v, err = f.GetCellValue("Daily", "D3")
	require.NoError(t, err)
	assert.Equal(t, "180", v)

	rows, err := f.GetRows("Categories")
	require.NoError(t, err)
	assert.Len(t, rows, 3, "header and two categories")
}
