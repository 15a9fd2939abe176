package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core"
)

const orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the `ordering` query param, keeping only the allowed fields.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) {
	ord.Orderings = core.ParseOrdering(ctx.QueryParam(orderingParam), allowed...)
}

// bind binds the request into dst; malformed payloads are validation errors.
func bind(ctx echo.Context, dst interface{}, name string) error {
	if err := ctx.Bind(dst); err != nil {
		if herr, ok := err.(*echo.HTTPError); ok {
			msg, _ := herr.Message.(string)
			if msg == "" {
				msg = "invalid request"
			}
			return core.NewValidationError(errors.New(msg))
		}
		return errors.Wrap(err, "binding to "+name)
	}
	return nil
}

// dateParam parses the optional YYYY-MM-DD query param `name`.
func dateParam(ctx echo.Context, name string) (core.Date, error) {
	var d core.Date
	if val := ctx.QueryParam(name); val != "" {
		if err := d.UnmarshalParam(val); err != nil {
			return d, core.NewFieldValidationError(name, "date must be in the YYYY-MM-DD format")
		}
	}
	return d, nil
}

type (
	SuccessResponse struct {
		Success bool        `json:"success"`
		Message string      `json:"message,omitempty"`
		Data    interface{} `json:"data,omitempty"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)
