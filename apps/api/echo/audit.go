package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/audit"
)

type auditApi struct {
	svc *audit.Service
}

func registerAuditAPI(g *echo.Group, deps ServerDeps) {
	api := auditApi{svc: deps.Audit}
	g.GET("/audit", api.query, roleMiddleware(roleAdmin, rolePrincipal))
}

func (api *auditApi) query(ctx echo.Context) error {
	f, err := bindAuditFilter(ctx)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	entries, err := api.svc.Query(ctx.Request().Context(), sess, f)
	if err != nil {
		return errors.Wrap(err, "querying audit entries")
	}
	if entries == nil {
		entries = make([]audit.Entry, 0)
	}
	return ctx.JSON(http.StatusOK, entries)
}
