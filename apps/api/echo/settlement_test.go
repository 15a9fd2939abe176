package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halldesk/halldesk/core/report"
	"github.com/halldesk/halldesk/core/settlement"
	"github.com/halldesk/halldesk/core/user"
	"github.com/halldesk/halldesk/tests"
)

func Test_settlementApi(t *testing.T) {
	env, app := setup(t)
	owner := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	sam := env.CreateUser(t, "Sam Space", "sam", user.RoleSpaceManager, true)
	tom := env.CreateUser(t, "Tom Space", "tom", user.RoleSpaceManager, true)
	ownerToken, samToken, tomToken := getToken(t, env, owner), getToken(t, env, sam), getToken(t, env, tom)

	rec := do(app, http.MethodPost, "/v1/settlements", samToken,
		[]byte(`{"date":"2024-05-02","type":"income","amount":"250","category":"Rent","source":"Hall A"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s settlement.Settlement
	unmarshal(t, rec, &s)
	assert.Equal(t, sam.ID, s.CreatedBy)

	t.Run("invalid type", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/settlements", samToken, []byte(`{"type":"gift","amount":"1","category":"x"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("others cannot edit directly", func(t *testing.T) {
		rec := do(app, http.MethodPut, "/v1/settlements/"+s.ID, tomToken, []byte(`{"amount":"300"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("creator edits directly", func(t *testing.T) {
		rec := do(app, http.MethodPut, "/v1/settlements/"+s.ID, samToken, []byte(`{"description":"May rent"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got settlement.Settlement
		unmarshal(t, rec, &got)
		assert.Equal(t, "May rent", got.Description)

		rec = do(app, http.MethodPut, "/v1/settlements/"+s.ID, samToken, []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var editReq settlement.ChangeRequest
	t.Run("edit request", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/settlements/"+s.ID+"/requests/edit", tomToken, []byte(`{"amount":"300","reason":"typo"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &editReq)
		assert.Equal(t, settlement.StatusPending, editReq.Status)
		assert.Equal(t, settlement.RequestEdit, editReq.RequestType)
		assert.Equal(t, "Tom Space", editReq.Payload.RequestedByName)
		assert.True(t, editReq.NameResolved)
		require.NotNil(t, editReq.Payload.Amount)
		assert.True(t, testutil.Dec("300").Equal(*editReq.Payload.Amount))
	})

	t.Run("list requests", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/settlement-requests", samToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var reqs []settlement.ChangeRequest
		unmarshal(t, rec, &reqs)
		assert.Empty(t, reqs, "non reviewers only see their own requests")

		rec = do(app, http.MethodGet, "/v1/settlement-requests?date=2024-05-02", ownerToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &reqs)
		require.Len(t, reqs, 1)
		assert.Equal(t, editReq.ID, reqs[0].ID)

		rec = do(app, http.MethodGet, "/v1/settlement-requests/"+editReq.ID, samToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = do(app, http.MethodGet, "/v1/settlement-requests/"+editReq.ID, tomToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("approve", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/settlement-requests/"+editReq.ID+"/approve", samToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(app, http.MethodPost, "/v1/settlement-requests/"+editReq.ID+"/approve", ownerToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var rev settlement.Review
		unmarshal(t, rec, &rev)
		assert.True(t, rev.Applied)
		assert.Equal(t, settlement.StatusApproved, rev.Request.Status)
		assert.Equal(t, owner.ID, rev.Request.ReviewedBy.String)

		rec = do(app, http.MethodGet, "/v1/settlements/"+s.ID, samToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var got settlement.Settlement
		unmarshal(t, rec, &got)
		assert.True(t, testutil.Dec("300").Equal(got.Amount))

		sent := env.Mailer.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, tom.Email, sent[0].To[0].Address)

		rec = do(app, http.MethodPost, "/v1/settlement-requests/"+editReq.ID+"/reject", ownerToken)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: settlement.ErrRequestClosed.Error()}),
		}, rec)
	})

	t.Run("delete request", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/settlements/"+s.ID+"/requests/delete", tomToken, []byte(`{"reason":"duplicate"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var req settlement.ChangeRequest
		unmarshal(t, rec, &req)

		rec = do(app, http.MethodPost, "/v1/settlement-requests/"+req.ID+"/approve", ownerToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(app, http.MethodGet, "/v1/settlements/"+s.ID, ownerToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		// the requests stay listable
		rec = do(app, http.MethodGet, "/v1/settlement-requests?status=all", ownerToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var reqs []settlement.ChangeRequest
		unmarshal(t, rec, &reqs)
		assert.Len(t, reqs, 2)

		rec = do(app, http.MethodGet, "/v1/settlement-requests?status=lost", ownerToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_reportApi(t *testing.T) {
	env, app := setup(t)
	owner := env.CreateUser(t, "Alice Owner", "alice", user.RoleOwner, true)
	sam := env.CreateUser(t, "Sam Space", "sam", user.RoleSpaceManager, true)
	token := getToken(t, env, owner)

	may := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)
	env.CreateSettlement(t, owner.ID, may, settlement.TypeIncome, testutil.Dec("250"), "Rent")
	env.CreateSettlement(t, owner.ID, may, settlement.TypeExpense, testutil.Dec("70"), "Cleaning")

	hall := env.CreateHall(t, "Hall A")
	teacher := env.CreateTeacher(t, "Mr Math", "MATH1", testutil.Dec("100"))
	stage := env.CreateStage(t, "Grade 10")
	b := env.CreateBooking(t, testutil.BookingFixture{HallID: hall.ID, TeacherID: teacher.ID, StageID: stage.ID, StartDate: may})
	st := env.CreateStudent(t, "Lina")
	env.CreateRegistration(t, st.ID, b.ID, may, testutil.Dec("100"), testutil.Dec("40"))

	t.Run("reports need report rights", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/reports/settlements", getToken(t, env, sam))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("settlements json", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/reports/settlements?from=2024-05-01&to=2024-05-31", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum settlement.Summary
		unmarshal(t, rec, &sum)
		assert.True(t, testutil.Dec("180").Equal(sum.Net))
		assert.Len(t, sum.ByCategory, 2)

		rec = do(app, http.MethodGet, "/v1/reports/settlements?from=2024-05-31&to=2024-05-01", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("settlements summary endpoint", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/settlements/summary?from=2024-05-01&to=2024-05-31", getToken(t, env, sam))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("monthly bookings json", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/reports/monthly-bookings?year=2024&month=5", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var rep report.MonthlyBookings
		unmarshal(t, rec, &rep)
		require.Len(t, rep.Lines, 1)
		assert.Equal(t, "Mr Math", rep.Lines[0].TeacherName)
		assert.Equal(t, 1, rep.Lines[0].PartialCount)
		assert.True(t, testutil.Dec("60").Equal(rep.Totals.Outstanding))

		rec = do(app, http.MethodGet, "/v1/reports/monthly-bookings?month=13", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/reports/monthly-bookings?year=2024&month=5&format=xlsx", token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, report.XLSXContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "bookings-2024-05.xlsx")
		assert.Equal(t, "PK", rec.Body.String()[:2]) // zip archive

		rec = do(app, http.MethodGet, "/v1/reports/settlements?from=2024-05-01&to=2024-05-31&format=xlsx", token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, report.XLSXContentType, rec.Header().Get("Content-Type"))
	})
}
