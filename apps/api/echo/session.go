package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

const (
	contextSessionKey = "session"

	roleAdmin     = "admin"
	rolePrincipal = "principal"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed token")
	errNoSchool      = echo.NewHTTPError(http.StatusForbidden, "session is not bound to a school")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// sessionMiddleware reads the operator session out of the bearer token.
// The token is forwarded as is to the school API, which verifies it.
func sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess, err := core.ParseSession(ctx.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return errors.Wrap(errUnauthorized, err.Error())
		}
		if sess.SchoolID == "" {
			return errNoSchool
		}
		ctx.Set(contextSessionKey, sess)
		return next(ctx)
	}
}

func getContextSession(ctx echo.Context) (core.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(core.Session); ok {
		return sess, nil
	}
	return core.Session{}, errUnauthorized
}

func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context session")
			}
			if sessionHasAnyRole(sess, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func sessionHasAnyRole(sess core.Session, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if sess.HasRole(role) {
			return true
		}
	}
	return false
}
