package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/settlement"
	"github.com/halldesk/halldesk/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")

	validationFailed = "validation failed"

	// domainErrCodes maps the sentinel errors of the business packages to HTTP status codes.
	domainErrCodes = map[error]int{
		core.ErrForbidden:                  http.StatusForbidden,
		user.ErrNotFound:                   http.StatusNotFound,
		user.ErrUserExists:                 http.StatusConflict,
		user.ErrInvalidCredentials:         http.StatusBadRequest,
		user.ErrAccountDeactivated:         http.StatusForbidden,
		booking.ErrNotFound:                http.StatusNotFound,
		booking.ErrHallNotFound:            http.StatusNotFound,
		booking.ErrStageNotFound:           http.StatusNotFound,
		booking.ErrTeacherNotFound:         http.StatusNotFound,
		booking.ErrTeacherExists:           http.StatusConflict,
		booking.ErrHasRegistration:         http.StatusConflict,
		enrollment.ErrStudentNotFound:      http.StatusNotFound,
		enrollment.ErrRegistrationNotFound: http.StatusNotFound,
		enrollment.ErrAlreadyRegistered:    http.StatusConflict,
		settlement.ErrNotFound:             http.StatusNotFound,
		settlement.ErrRequestNotFound:      http.StatusNotFound,
		settlement.ErrRequestClosed:        http.StatusConflict,
		settlement.ErrNoChanges:            http.StatusBadRequest,
	}
)

// errorResponse is the body of every error: a message and, for validation errors, field details.
type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		resp := errorResponse{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				resp.Error = origErr.Message.(string)
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if msg, ok := origErr.Message.(string); ok {
				resp.Error = msg
			} else {
				resp.Error = http.StatusText(code)
			}
		case validator.ValidationErrors:
			resp.Details = make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				resp.Details[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			resp.Error = validationFailed
		case *core.ValidationError:
			code = http.StatusBadRequest
			resp.Error = origErr.Error()
			if len(origErr.Fields) > 0 {
				resp.Error = validationFailed
				resp.Details = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					resp.Details[fErr.Field] = fErr.Error
				}
			}
		default:
			if c, ok := domainErrCodes[cause]; ok {
				code = c
				resp.Error = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			resp.Error = http.StatusText(http.StatusInternalServerError)

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(resp.Error, errors.Wrap(err, resp.Error), usr)

			// shutting down...
			if core.IsShutdown(err) && signalShutdown != nil {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			resp.Error = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
