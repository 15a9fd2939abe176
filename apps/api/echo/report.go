package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/report"
	"github.com/halldesk/halldesk/core/user"
)

const formatXLSX = "xlsx"

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, svc *report.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/reports", requireMiddleware(user.ActionViewReports))
	rg.GET("/monthly-bookings", api.monthlyBookings)
	rg.GET("/settlements", api.settlements)
}

func (api *reportApi) monthlyBookings(ctx echo.Context) error {
	year, month, err := monthParams(ctx)
	if err != nil {
		return err
	}
	rep, err := api.svc.MonthlyBookings(ctx.Request().Context(), year, month)
	if err != nil {
		return errors.Wrap(err, "building monthly bookings report")
	}

	if ctx.QueryParam("format") != formatXLSX {
		return ctx.JSON(http.StatusOK, rep)
	}
	setAttachment(ctx, fmt.Sprintf("bookings-%d-%02d.xlsx", year, month))
	ctx.Response().WriteHeader(http.StatusOK)
	return errors.Wrap(report.WriteMonthlyBookingsXLSX(ctx.Response(), rep), "writing xlsx")
}

func (api *reportApi) settlements(ctx echo.Context) error {
	from, to, err := periodParams(ctx)
	if err != nil {
		return err
	}
	sum, err := api.svc.Settlements(ctx.Request().Context(), from.Time, to.Time)
	if err != nil {
		return errors.Wrap(err, "building settlements report")
	}

	if ctx.QueryParam("format") != formatXLSX {
		return ctx.JSON(http.StatusOK, sum)
	}
	setAttachment(ctx, fmt.Sprintf("settlements-%s-%s.xlsx", from.Format(core.DateLayout), to.Format(core.DateLayout)))
	ctx.Response().WriteHeader(http.StatusOK)
	return errors.Wrap(report.WriteSettlementsXLSX(ctx.Response(), sum), "writing xlsx")
}

func setAttachment(ctx echo.Context, filename string) {
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, report.XLSXContentType)
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
}

// monthParams reads the `year` and `month` query params, defaulting to the current month.
func monthParams(ctx echo.Context) (int, time.Month, error) {
	now := core.NowFunc()
	year, month := now.Year(), now.Month()

	if val := ctx.QueryParam("year"); val != "" {
		y, err := strconv.Atoi(val)
		if err != nil || y < 2000 || y > 9999 {
			return 0, 0, core.NewFieldValidationError("year", "invalid year")
		}
		year = y
	}
	if val := ctx.QueryParam("month"); val != "" {
		m, err := strconv.Atoi(val)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, core.NewFieldValidationError("month", "month must be between 1 and 12")
		}
		month = time.Month(m)
	}
	return year, month, nil
}
