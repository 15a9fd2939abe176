package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/settlement"
	"github.com/halldesk/halldesk/core/user"
)

type settlementApi struct {
	svc *settlement.Service
}

func registerSettlementAPI(g *echo.Group, svc *settlement.Service) {
	api := settlementApi{svc: svc}
	canView := requireMiddleware(user.ActionView)

	sg := g.Group("/settlements")
	sg.POST("", api.create)
	sg.GET("", api.query, canView)
	sg.GET("/summary", api.summary, requireMiddleware(user.ActionViewReports, user.ActionManageSettlements))
	sg.GET("/:id", api.retrieve, canView)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
	sg.POST("/:id/requests/edit", api.requestEdit)
	sg.POST("/:id/requests/delete", api.requestDelete)

	rg := g.Group("/settlement-requests")
	rg.GET("", api.listRequests, canView)
	rg.GET("/:id", api.retrieveRequest, canView)
	rg.POST("/:id/approve", api.approve)
	rg.POST("/:id/reject", api.reject)
}

func (api *settlementApi) create(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data settlement.NewSettlement
	if err = bind(ctx, &data, "NewSettlement"); err != nil {
		return err
	}
	s, err := api.svc.Create(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating settlement")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *settlementApi) query(ctx echo.Context) error {
	var filter settlement.Filter
	if err := bind(ctx, &filter, "Filter"); err != nil {
		return err
	}
	list, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying settlements")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *settlementApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting settlement")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settlementApi) update(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data settlement.Changes
	if err = bind(ctx, &data, "Changes"); err != nil {
		return err
	}
	s, err := api.svc.Update(ctx.Request().Context(), sess, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating settlement")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settlementApi) destroy(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), sess, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting settlement")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// summary aggregates the settlements between `from` and `to`, the current month by default.
func (api *settlementApi) summary(ctx echo.Context) error {
	from, to, err := periodParams(ctx)
	if err != nil {
		return err
	}
	sum, err := api.svc.Summary(ctx.Request().Context(), from.Time, to.Time)
	if err != nil {
		return errors.Wrap(err, "summarizing settlements")
	}
	return ctx.JSON(http.StatusOK, sum)
}

// Change requests

func (api *settlementApi) requestEdit(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data EditRequest
	if err = bind(ctx, &data, "EditRequest"); err != nil {
		return err
	}
	req, err := api.svc.RequestEdit(ctx.Request().Context(), sess, ctx.Param("id"), data.Changes, data.Reason)
	if err != nil {
		return errors.Wrap(err, "requesting settlement edit")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *settlementApi) requestDelete(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data DeleteRequest
	if err = bind(ctx, &data, "DeleteRequest"); err != nil {
		return err
	}
	req, err := api.svc.RequestDelete(ctx.Request().Context(), sess, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "requesting settlement deletion")
	}
	return ctx.JSON(http.StatusCreated, req)
}

// listRequests lists change requests. Users who cannot review them only see their own.
func (api *settlementApi) listRequests(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var filter settlement.RequestFilter
	if err = bind(ctx, &filter, "RequestFilter"); err != nil {
		return err
	}
	if !sess.Can(user.ActionReviewChangeRequests) {
		filter.UserID = sess.User.ID
	}
	reqs, err := api.svc.ListRequests(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing change requests")
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *settlementApi) retrieveRequest(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	req, err := api.svc.GetRequest(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting change request")
	}
	if req.RequestedBy != sess.User.ID && !sess.Can(user.ActionReviewChangeRequests) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *settlementApi) approve(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	rev, err := api.svc.Approve(ctx.Request().Context(), sess, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving change request")
	}
	return ctx.JSON(http.StatusOK, rev)
}

func (api *settlementApi) reject(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	rev, err := api.svc.Reject(ctx.Request().Context(), sess, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting change request")
	}
	return ctx.JSON(http.StatusOK, rev)
}

// periodParams reads the `from` and `to` query params. Missing bounds default to the current month.
func periodParams(ctx echo.Context) (core.Date, core.Date, error) {
	from, err := dateParam(ctx, "from")
	if err != nil {
		return from, core.Date{}, err
	}
	to, err := dateParam(ctx, "to")
	if err != nil {
		return from, to, err
	}
	first, last := core.MonthOf(core.NowFunc())
	if from.IsZero() {
		from.Time = first
	}
	if to.IsZero() {
		to.Time = last
	}
	if to.Before(from.Time) {
		return from, to, core.NewFieldValidationError("to", "to must not be before from")
	}
	return from, to, nil
}

type (
	EditRequest struct {
		settlement.Changes
		Reason string `json:"reason"`
	}

	DeleteRequest struct {
		Reason string `json:"reason"`
	}
)
