package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core/rollover"
)

type rolloverApi struct {
	svc *rollover.Service
}

func registerRolloverAPI(g *echo.Group, svc *rollover.Service) {
	api := rolloverApi{svc: svc}

	rg := g.Group("/rollover")
	rg.POST("/bookings/:id", api.rollBooking)
	rg.POST("/next-month", api.rollAll)
}

func (api *rolloverApi) rollBooking(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data rollover.MonthlyRequest
	if err = bind(ctx, &data, "MonthlyRequest"); err != nil {
		return err
	}
	data.BookingID = ctx.Param("id")

	res, err := api.svc.CreateMonthlyRegistrations(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "rolling booking over")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *rolloverApi) rollAll(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data NextMonthRequest
	if err = bind(ctx, &data, "NextMonthRequest"); err != nil {
		return err
	}

	res, err := api.svc.ResetAllToNextMonth(ctx.Request().Context(), sess, sess.Now, data.ResetAttendance)
	if err != nil {
		return errors.Wrap(err, "rolling bookings over to next month")
	}
	return ctx.JSON(http.StatusOK, res)
}

type NextMonthRequest struct {
	ResetAttendance bool `json:"reset_attendance"`
}
