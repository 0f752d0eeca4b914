package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/student"
)

type enrollmentApi struct {
	deps     ServerDeps
	notifier enrollment.Notifier
	now      func() time.Time
}

type studentResponse struct {
	ID      string        `json:"id"`
	Student student.Draft `json:"student"`
}

type enrollmentResponse struct {
	enrollment.Outcome
	ShowCredentials bool `json:"show_credentials"`
}

func registerEnrollmentAPI(g *echo.Group, deps ServerDeps) {
	api := enrollmentApi{deps: deps, now: time.Now}
	if deps.Mailer != nil {
		api.notifier = enrollment.NewSummaryNotifier(deps.Mailer, deps.Conf.Enrollment.OperatorEmail)
	}

	g.POST("/enrollments", api.create)
	g.GET("/students/:id", api.show)
	g.PUT("/students/:id", api.update)
	g.POST("/enrollments/check-accounts", api.checkAccounts)
	g.GET("/accounts/lookup", api.lookup)
	g.POST("/fees/quote", api.quote)
}

func (api *enrollmentApi) feeOptions() fee.Options {
	return fee.Options{
		SiblingDiscountPercent: api.deps.Conf.Enrollment.SiblingDiscountPercent,
		DueDays:                api.deps.Conf.Enrollment.FeeDueDays,
	}
}

// orchestrator builds the workflow for the operator of the request, calling the school API with their token.
func (api *enrollmentApi) orchestrator(ctx echo.Context) (*enrollment.Orchestrator, error) {
	sess, err := getContextSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context session")
	}

	conf := api.deps.Conf.Enrollment
	opts := []enrollment.Option{
		enrollment.WithValidator(api.deps.Validate, api.deps.Translator),
		enrollment.WithFeeOptions(api.feeOptions()),
		enrollment.WithStrictPasswords(conf.StrictPasswords),
		enrollment.WithParentPasswordReuse(conf.ReuseStudentPasswordForParent),
		enrollment.WithRecorder(api.deps.Audit),
		enrollment.WithClock(api.now),
	}
	if api.notifier != nil {
		opts = append(opts, enrollment.WithNotifier(api.notifier))
	}
	return enrollment.NewOrchestrator(api.deps.API.WithToken(sess.Token), sess, api.deps.Logger, opts...)
}

func (api *enrollmentApi) create(ctx echo.Context) error {
	var sub enrollment.Submission
	if err := ctx.Bind(&sub); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	sub.Mode = enrollment.ModeCreate
	sub.StudentID = ""

	o, err := api.orchestrator(ctx)
	if err != nil {
		return errors.Wrap(err, "creating orchestrator")
	}
	out, err := o.Run(ctx.Request().Context(), sub)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enrollmentResponse{Outcome: out, ShowCredentials: out.ShowCredentials()})
}

// show returns the student as a draft ready to be edited and sent back to update.
func (api *enrollmentApi) show(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	s, err := api.deps.API.WithToken(sess.Token).GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, studentResponse{ID: s.ID, Student: student.FromStudent(s)})
}

func (api *enrollmentApi) update(ctx echo.Context) error {
	var sub enrollment.Submission
	if err := ctx.Bind(&sub); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	sub.Mode = enrollment.ModeEdit
	sub.StudentID = ctx.Param("id")
	sub.Fee = nil

	o, err := api.orchestrator(ctx)
	if err != nil {
		return errors.Wrap(err, "creating orchestrator")
	}
	out, err := o.Run(ctx.Request().Context(), sub)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enrollmentResponse{Outcome: out})
}

// checkAccounts warns about student and parent emails that already belong to portal accounts.
func (api *enrollmentApi) checkAccounts(ctx echo.Context) error {
	var sub enrollment.Submission
	if err := ctx.Bind(&sub); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	sub.Draft.Clean()

	o, err := api.orchestrator(ctx)
	if err != nil {
		return errors.Wrap(err, "creating orchestrator")
	}
	notices, err := o.CheckExistingAccounts(ctx.Request().Context(), sub.Draft, sub.ParentAccount)
	if err != nil {
		return err
	}
	if notices == nil {
		notices = make([]enrollment.Notice, 0)
	}
	return ctx.JSON(http.StatusOK, notices)
}

func (api *enrollmentApi) lookup(ctx echo.Context) error {
	email := core.CleanString(ctx.QueryParam("email"), true)
	if email == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "this field is required"})
	}
	if !strings.Contains(email, "@") {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "must be a valid email address"})
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	acct, err := api.deps.API.WithToken(sess.Token).LookupUserByEmail(ctx.Request().Context(), email)
	if err != nil {
		return err
	}

	res := lookupResponse{Email: email, Exists: acct != nil}
	if acct != nil {
		res.Account = &accountResponse{ID: acct.ID, Name: acct.Name, Roles: acct.Roles}
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *enrollmentApi) quote(ctx echo.Context) error {
	var d fee.Draft
	if err := ctx.Bind(&d); err != nil {
		return errors.Wrap(err, "binding to fee.Draft")
	}
	p, err := d.Quote(api.now(), api.feeOptions())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

