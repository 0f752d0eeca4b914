package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/audit"
)

// bindAuditFilter reads ?action=&subject_id=&since=<RFC3339|YYYY-MM-DD>&limit=.
// The school always comes from the session.
func bindAuditFilter(ctx echo.Context) (audit.Filter, error) {
	data := ctx.QueryParams()
	f := audit.Filter{
		Action:    strings.TrimSpace(data.Get("action")),
		SubjectID: strings.TrimSpace(data.Get("subject_id")),
	}

	if since := strings.TrimSpace(data.Get("since")); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			if t, err = time.Parse("2006-01-02", since); err != nil {
				return f, core.NewValidationError(err, core.FieldError{Field: "since", Error: "expected an RFC 3339 time or a YYYY-MM-DD date"})
			}
		}
		f.Since = t
	}

	if limit := strings.TrimSpace(data.Get("limit")); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return f, core.NewValidationError(err, core.FieldError{Field: "limit", Error: "expected a number"})
		}
		f.Limit = n
	}
	return f, nil
}

type decisionRequest struct {
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

type lookupResponse struct {
	Email   string           `json:"email"`
	Exists  bool             `json:"exists"`
	Account *accountResponse `json:"account,omitempty"`
}

type accountResponse struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}
