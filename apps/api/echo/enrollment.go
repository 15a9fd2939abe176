package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/user"
)

type enrollmentApi struct {
	svc *enrollment.Service
}

func registerEnrollmentAPI(g *echo.Group, svc *enrollment.Service) {
	api := enrollmentApi{svc: svc}
	canView := requireMiddleware(user.ActionView)

	sg := g.Group("/students")
	sg.POST("", api.createStudent)
	sg.GET("", api.queryStudents, canView)
	sg.GET("/:id", api.retrieveStudent, canView)
	sg.PUT("/:id", api.updateStudent)

	rg := g.Group("/registrations")
	rg.POST("", api.register)
	rg.GET("", api.queryRegistrations, canView)
	rg.GET("/:id", api.retrieveRegistration, canView)
	rg.PUT("/:id/fees", api.updateFees)
	rg.DELETE("/:id", api.destroyRegistration)
	rg.POST("/:id/payments", api.recordPayment)
	rg.GET("/:id/payments", api.queryPayments, canView)

	ag := g.Group("/attendance")
	ag.POST("", api.markAttendance)
	ag.GET("", api.queryAttendance, canView)
}

// Students

func (api *enrollmentApi) createStudent(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data enrollment.NewStudent
	if err = bind(ctx, &data, "NewStudent"); err != nil {
		return err
	}
	st, err := api.svc.CreateStudent(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *enrollmentApi) queryStudents(ctx echo.Context) error {
	var filter enrollment.StudentFilter
	if err := bind(ctx, &filter, "StudentFilter"); err != nil {
		return err
	}
	students, err := api.svc.QueryStudents(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *enrollmentApi) retrieveStudent(ctx echo.Context) error {
	st, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *enrollmentApi) updateStudent(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data enrollment.UpdateStudent
	if err = bind(ctx, &data, "UpdateStudent"); err != nil {
		return err
	}
	st, err := api.svc.UpdateStudent(ctx.Request().Context(), sess, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

// Registrations

func (api *enrollmentApi) register(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data enrollment.NewRegistration
	if err = bind(ctx, &data, "NewRegistration"); err != nil {
		return err
	}
	reg, err := api.svc.Register(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusCreated, reg)
}

func (api *enrollmentApi) queryRegistrations(ctx echo.Context) error {
	var filter enrollment.RegistrationFilter
	if err := bind(ctx, &filter, "RegistrationFilter"); err != nil {
		return err
	}
	regs, err := api.svc.QueryRegistrations(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying registrations")
	}
	return ctx.JSON(http.StatusOK, regs)
}

func (api *enrollmentApi) retrieveRegistration(ctx echo.Context) error {
	reg, err := api.svc.GetRegistration(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting registration")
	}
	return ctx.JSON(http.StatusOK, reg)
}

func (api *enrollmentApi) updateFees(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data FeesRequest
	if err = bind(ctx, &data, "FeesRequest"); err != nil {
		return err
	}
	reg, err := api.svc.UpdateFees(ctx.Request().Context(), sess, ctx.Param("id"), data.TotalFees)
	if err != nil {
		return errors.Wrap(err, "updating registration fees")
	}
	return ctx.JSON(http.StatusOK, reg)
}

func (api *enrollmentApi) destroyRegistration(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteRegistration(ctx.Request().Context(), sess, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting registration")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Payments

func (api *enrollmentApi) recordPayment(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data enrollment.NewPayment
	if err = bind(ctx, &data, "NewPayment"); err != nil {
		return err
	}
	reg, pmt, err := api.svc.RecordPayment(ctx.Request().Context(), sess, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, PaymentResponse{Registration: reg, Payment: pmt})
}

func (api *enrollmentApi) queryPayments(ctx echo.Context) error {
	pmts, err := api.svc.QueryPayments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, pmts)
}

// Attendance

func (api *enrollmentApi) markAttendance(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data enrollment.MarkAttendance
	if err = bind(ctx, &data, "MarkAttendance"); err != nil {
		return err
	}
	rec, err := api.svc.MarkAttendance(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// queryAttendance lists the attendance of the `booking_id` booking; the period defaults to the current month.
func (api *enrollmentApi) queryAttendance(ctx echo.Context) error {
	bookingID := ctx.QueryParam("booking_id")
	if bookingID == "" {
		return core.NewFieldValidationError("booking_id", "booking_id is required")
	}
	from, err := dateParam(ctx, "from")
	if err != nil {
		return err
	}
	to, err := dateParam(ctx, "to")
	if err != nil {
		return err
	}
	if from.IsZero() && to.IsZero() {
		now := core.NowFunc()
		from.Time, to.Time = core.MonthRange(now.Year(), now.Month())
	}

	recs, err := api.svc.QueryAttendance(ctx.Request().Context(), bookingID, from.Time, to.Time)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	return ctx.JSON(http.StatusOK, recs)
}

type (
	FeesRequest struct {
		TotalFees decimal.Decimal `json:"total_fees"`
	}

	PaymentResponse struct {
		Registration enrollment.Registration `json:"registration"`
		Payment      enrollment.Payment      `json:"payment"`
	}
)
