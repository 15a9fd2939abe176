package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core/billing"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/user"
)

type bookingApi struct {
	svc     *booking.Service
	billing *billing.Service
}

func registerBookingAPI(g *echo.Group, svc *booking.Service, billingSvc *billing.Service) {
	api := bookingApi{svc: svc, billing: billingSvc}
	canView := requireMiddleware(user.ActionView)

	hg := g.Group("/halls")
	hg.POST("", api.createHall)
	hg.GET("", api.queryHalls, canView)
	hg.GET("/:id", api.retrieveHall, canView)
	hg.PUT("/:id", api.updateHall)

	sg := g.Group("/stages")
	sg.POST("", api.createStage)
	sg.GET("", api.queryStages, canView)

	tg := g.Group("/teachers")
	tg.POST("", api.createTeacher)
	tg.GET("", api.queryTeachers, canView)
	tg.GET("/:id", api.retrieveTeacher, canView)
	tg.PUT("/:id", api.updateTeacher)
	tg.PUT("/:id/default-fee", api.applyTeacherDefaultFee)

	bg := g.Group("/bookings")
	bg.POST("", api.create)
	bg.GET("", api.query, canView)
	bg.GET("/:id", api.retrieve, canView)
	bg.PUT("/:id", api.update)
	bg.PUT("/:id/status", api.setStatus)
	bg.PUT("/:id/fee", api.setCustomFee)
	bg.DELETE("/:id", api.destroy)
}

// Halls

func (api *bookingApi) createHall(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data booking.NewHall
	if err = bind(ctx, &data, "NewHall"); err != nil {
		return err
	}
	hall, err := api.svc.CreateHall(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating hall")
	}
	return ctx.JSON(http.StatusCreated, hall)
}

func (api *bookingApi) queryHalls(ctx echo.Context) error {
	halls, err := api.svc.QueryHalls(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying halls")
	}
	return ctx.JSON(http.StatusOK, halls)
}

func (api *bookingApi) retrieveHall(ctx echo.Context) error {
	hall, err := api.svc.GetHall(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting hall")
	}
	return ctx.JSON(http.StatusOK, hall)
}

func (api *bookingApi) updateHall(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data booking.UpdateHall
	if err = bind(ctx, &data, "UpdateHall"); err != nil {
		return err
	}
	hall, err := api.svc.UpdateHall(ctx.Request().Context(), sess, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating hall")
	}
	return ctx.JSON(http.StatusOK, hall)
}

// Academic stages

func (api *bookingApi) createStage(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data booking.NewStage
	if err = bind(ctx, &data, "NewStage"); err != nil {
		return err
	}
	stage, err := api.svc.CreateStage(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating academic stage")
	}
	return ctx.JSON(http.StatusCreated, stage)
}

func (api *bookingApi) queryStages(ctx echo.Context) error {
	stages, err := api.svc.QueryStages(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying academic stages")
	}
	return ctx.JSON(http.StatusOK, stages)
}

// Teachers

func (api *bookingApi) createTeacher(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data booking.NewTeacher
	if err = bind(ctx, &data, "NewTeacher"); err != nil {
		return err
	}
	t, err := api.svc.CreateTeacher(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *bookingApi) queryTeachers(ctx echo.Context) error {
	teachers, err := api.svc.QueryTeachers(ctx.Request().Context(), ctx.QueryParam("search"))
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *bookingApi) retrieveTeacher(ctx echo.Context) error {
	t, err := api.svc.GetTeacher(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting teacher")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *bookingApi) updateTeacher(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data booking.UpdateTeacher
	if err = bind(ctx, &data, "UpdateTeacher"); err != nil {
		return err
	}
	t, err := api.svc.UpdateTeacher(ctx.Request().Context(), sess, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating teacher")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *bookingApi) applyTeacherDefaultFee(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data DefaultFeeRequest
	if err = bind(ctx, &data, "DefaultFeeRequest"); err != nil {
		return err
	}
	opts := billing.ApplyFeeOptions{
		BookingIDs:          data.BookingIDs,
		ApplyToCurrentMonth: data.ApplyToCurrentMonth,
	}
	res, err := api.billing.ApplyTeacherDefaultFee(ctx.Request().Context(), sess, ctx.Param("id"), data.Fee, opts)
	if err != nil {
		return errors.Wrap(err, "applying teacher default fee")
	}
	return ctx.JSON(http.StatusOK, res)
}

// Bookings

func (api *bookingApi) create(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data booking.NewBooking
	if err = bind(ctx, &data, "NewBooking"); err != nil {
		return err
	}
	b, err := api.svc.Create(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating booking")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *bookingApi) query(ctx echo.Context) error {
	var filter booking.QueryFilter
	if err := bind(ctx, &filter, "QueryFilter"); err != nil {
		return err
	}
	bookings, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying bookings")
	}
	return ctx.JSON(http.StatusOK, bookings)
}

func (api *bookingApi) retrieve(ctx echo.Context) error {
	b, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting booking")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *bookingApi) update(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data booking.UpdateBooking
	if err = bind(ctx, &data, "UpdateBooking"); err != nil {
		return err
	}
	b, err := api.svc.Update(ctx.Request().Context(), sess, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating booking")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *bookingApi) setStatus(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data StatusRequest
	if err = bind(ctx, &data, "StatusRequest"); err != nil {
		return err
	}
	b, err := api.svc.SetStatus(ctx.Request().Context(), sess, ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "setting booking status")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *bookingApi) setCustomFee(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data FeeRequest
	if err = bind(ctx, &data, "FeeRequest"); err != nil {
		return err
	}
	res, err := api.billing.SetCustomFee(ctx.Request().Context(), sess, ctx.Param("id"), data.Fee)
	if err != nil {
		return errors.Wrap(err, "setting booking fee")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *bookingApi) destroy(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), sess, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting booking")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	StatusRequest struct {
		Status string `json:"status"`
	}

	FeeRequest struct {
		Fee decimal.Decimal `json:"fee"`
	}

	DefaultFeeRequest struct {
		Fee                 decimal.Decimal `json:"fee"`
		BookingIDs          []string        `json:"booking_ids"`
		ApplyToCurrentMonth bool            `json:"apply_to_current_month"`
	}
)
