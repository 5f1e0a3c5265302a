package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

var (
	errUnauthorized     = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errInvalidToken     = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errAccountSuspended = echo.NewHTTPError(http.StatusForbidden, "account suspended")
	errRefreshExpired   = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden    = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errSuspendSelf      = echo.NewHTTPError(http.StatusBadRequest, "you cannot suspend your own account")
)

func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		var code int
		var message interface{}

		switch cause := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if cause == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = cause.Message
				break
			}
			if cause.Internal != nil {
				if herr, ok := cause.Internal.(*echo.HTTPError); ok {
					cause = herr
				}
			}
			code = cause.Code
			message = cause.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string)
			for _, vErr := range cause {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if cause.Fields != nil {
				fldErrs := make(map[string]string)
				for _, fErr := range cause.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = cause.Error()
			}
			code = http.StatusBadRequest
		case *core.NotFoundError:
			code = http.StatusNotFound
			message = cause.Error()
		case *core.ForbiddenError:
			code = http.StatusForbidden
			message = cause.Error()
		case user.UnverifiedEmailError:
			code = http.StatusForbidden
			message = echo.Map{"error": cause.Error(), "requires_verification": true, "email": cause.Email}
		default:
			switch cause {
			case core.ErrThrottled:
				code = http.StatusTooManyRequests
				message = cause.Error()
			case user.ErrInvalidCredentials:
				code = http.StatusBadRequest
				message = cause.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				message = http.StatusText(http.StatusInternalServerError)

				var args []interface{}
				if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
					args = append(args, usr)
				}
				args = append(args, err, map[string]interface{}{
					"method": ctx.Request().Method,
					"path":   ctx.Path(),
				})
				logger.Error(fmt.Sprintf("%s %s: %v", ctx.Request().Method, ctx.Request().URL.Path, err), args...)

				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, message)
		}
		if err != nil {
			logger.Error(fmt.Sprintf("sending error response: %v", err), err)
		}
	}
}
