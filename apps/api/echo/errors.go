package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/leave"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message := errorResponse(err, translator)

		if code == http.StatusInternalServerError {
			msg := http.StatusText(code)
			args := []interface{}{errors.Wrap(err, msg), map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			}}
			if sess, sErr := getContextSession(ctx); sErr == nil {
				args = append(args, sess)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// errorResponse maps an error to its status and body. Bodies are a string or a field map.
func errorResponse(err error, translator ut.Translator) (int, interface{}) {
	var (
		httpErr *echo.HTTPError
		vErrs   validator.ValidationErrors
		valErr  *core.ValidationError
		flowErr *enrollment.Error
		reqErr  *core.RequestError
	)

	switch {
	case errors.As(err, &httpErr):
		if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
			httpErr = herr
		}
		return httpErr.Code, httpErr.Message

	case errors.As(err, &vErrs):
		fldErrs := make(map[string]string, len(vErrs))
		for _, vErr := range vErrs {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return http.StatusBadRequest, fldErrs

	case errors.As(err, &valErr):
		return http.StatusBadRequest, validationMessage(valErr)

	case errors.As(err, &flowErr):
		if flowErr.Kind == enrollment.ValidationFailed {
			if errors.As(flowErr.Err, &valErr) {
				return http.StatusBadRequest, validationMessage(valErr)
			}
			return http.StatusBadRequest, flowErr.Message
		}
		return remoteStatus(flowErr.Err), flowErr.Message

	case errors.As(err, &reqErr):
		return remoteStatus(reqErr), reqErr.Message

	case errors.Is(err, leave.ErrNotPending):
		return http.StatusNotFound, leave.ErrNotPending.Error()

	case errors.Is(err, leave.ErrNoIdentifier):
		return http.StatusConflict, leave.ErrNoIdentifier.Error()

	case errors.Is(err, leave.ErrInvalidKey):
		return http.StatusBadRequest, errors.Cause(err).Error()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func validationMessage(err *core.ValidationError) interface{} {
	if len(err.Fields) == 0 {
		return err.Error()
	}
	fldErrs := make(map[string]string, len(err.Fields))
	for _, fErr := range err.Fields {
		if _, ok := fldErrs[fErr.Field]; !ok { // first rule wins
			fldErrs[fErr.Field] = fErr.Error
		}
	}
	return fldErrs
}

// remoteStatus passes authentication and lookup failures through; anything else is a bad gateway.
func remoteStatus(err error) int {
	var reqErr *core.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return reqErr.StatusCode
		}
	}
	return http.StatusBadGateway
}
