package echoapi_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/halldesk/halldesk/apps/api/echo"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/user"
	"github.com/halldesk/halldesk/tests"
)

func Test_enrollmentApi(t *testing.T) {
	env, app := setup(t)
	sm := env.CreateUser(t, "Sam Space", "sam", user.RoleSpaceManager, true)
	carl := env.CreateUser(t, "Carl Teacher", "carl", user.RoleTeacher, true)
	token := getToken(t, env, sm)

	hall := env.CreateHall(t, "Hall A")
	stage := env.CreateStage(t, "Grade 10")
	teacher := env.CreateTeacher(t, "Mr Math", "MATH1", testutil.Dec("100"))
	b := env.CreateBooking(t, testutil.BookingFixture{
		HallID: hall.ID, TeacherID: teacher.ID, StageID: stage.ID,
		StartDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), Fee: testutil.Dec("100"),
	})

	rec := do(app, http.MethodPost, "/v1/students", token, []byte(fmt.Sprintf(`{"name":" Lina ","academic_stage_id":%q}`, stage.ID)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var student enrollment.Student
	unmarshal(t, rec, &student)
	assert.Equal(t, "Lina", student.Name)

	register := []byte(fmt.Sprintf(`{"student_id":%q,"booking_id":%q,"registration_date":"2024-02-10"}`, student.ID, b.ID))

	t.Run("teachers cannot register", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/registrations", getToken(t, env, carl), register)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	var reg enrollment.Registration
	t.Run("register with booking fee", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/registrations", token, register)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &reg)
		assert.True(t, testutil.Dec("100").Equal(reg.TotalFees))
		assert.Equal(t, enrollment.PaymentPending, reg.PaymentStatus)
	})

	t.Run("already registered this month", func(t *testing.T) {
		again := []byte(fmt.Sprintf(`{"student_id":%q,"booking_id":%q,"registration_date":"2024-02-25"}`, student.ID, b.ID))
		rec := do(app, http.MethodPost, "/v1/registrations", token, again)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httpErr
		unmarshal(t, rec, &resp)
		assert.Equal(t, enrollment.ErrAlreadyRegistered.Error(), resp.Details["student_id"])
	})

	t.Run("payments drive the status", func(t *testing.T) {
		path := "/v1/registrations/" + reg.ID + "/payments"

		rec := do(app, http.MethodPost, path, token, []byte(`{"amount":"0"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(app, http.MethodPost, path, token, []byte(`{"amount":"40","paid_at":"2024-02-11"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp echoapi.PaymentResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, enrollment.PaymentPartial, resp.Registration.PaymentStatus)
		assert.Equal(t, sm.ID, resp.Payment.RecordedBy)

		rec = do(app, http.MethodPost, path, token, []byte(`{"amount":"60"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &resp)
		assert.Equal(t, enrollment.PaymentPaid, resp.Registration.PaymentStatus)

		rec = do(app, http.MethodGet, path, getToken(t, env, carl))
		require.Equal(t, http.StatusOK, rec.Code)
		var pmts []enrollment.Payment
		unmarshal(t, rec, &pmts)
		assert.Len(t, pmts, 2)
	})

	t.Run("query by payment status", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/registrations?payment_status=paid&booking_id="+b.ID, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var regs []enrollment.Registration
		unmarshal(t, rec, &regs)
		require.Len(t, regs, 1)
		assert.Equal(t, reg.ID, regs[0].ID)

		rec = do(app, http.MethodGet, "/v1/registrations?from=2024-03-01", token)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &regs)
		assert.Empty(t, regs)
	})

	t.Run("attendance", func(t *testing.T) {
		mark := []byte(fmt.Sprintf(`{"registration_id":%q,"date":"2024-02-12","status":"present"}`, reg.ID))
		rec := do(app, http.MethodPost, "/v1/attendance", getToken(t, env, carl), mark)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// marking again replaces the status
		mark = []byte(fmt.Sprintf(`{"registration_id":%q,"date":"2024-02-12","status":"absent"}`, reg.ID))
		rec = do(app, http.MethodPost, "/v1/attendance", getToken(t, env, carl), mark)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(app, http.MethodGet, "/v1/attendance?booking_id="+b.ID+"&from=2024-02-01&to=2024-02-29", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var recs []enrollment.AttendanceRecord
		unmarshal(t, rec, &recs)
		require.Len(t, recs, 1)
		assert.Equal(t, enrollment.AttendanceAbsent, recs[0].Status)

		rec = do(app, http.MethodGet, "/v1/attendance", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = do(app, http.MethodGet, "/v1/attendance?booking_id="+b.ID+"&from=02/01/2024", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rollover", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/rollover/bookings/"+b.ID, getToken(t, env, carl), []byte(`{"year":2024,"month":3}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(app, http.MethodPost, "/v1/rollover/bookings/"+b.ID, token, []byte(`{"year":2024,"month":3}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res rollover.Result
		unmarshal(t, rec, &res)
		assert.Equal(t, rollover.Result{BookingID: b.ID, Created: 1}, res)

		// idempotent
		rec = do(app, http.MethodPost, "/v1/rollover/bookings/"+b.ID, token, []byte(`{"year":2024,"month":3}`))
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &res)
		assert.Equal(t, 0, res.Created)

		rec = do(app, http.MethodPost, "/v1/rollover/bookings/unknown", token, []byte(`{"year":2024,"month":3}`))
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &res)
		assert.True(t, res.NotActive)

		rec = do(app, http.MethodPost, "/v1/rollover/next-month", token, []byte(`{}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var batch rollover.BatchResult
		unmarshal(t, rec, &batch)
		assert.Equal(t, 1, batch.Processed)
		assert.Empty(t, batch.Errors)
	})

	t.Run("delete registration", func(t *testing.T) {
		rec := do(app, http.MethodDelete, "/v1/registrations/"+reg.ID, token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = do(app, http.MethodGet, "/v1/registrations/"+reg.ID, token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
