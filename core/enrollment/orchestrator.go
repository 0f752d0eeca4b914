// Package enrollment drives the multi-step student enrollment workflow against the school API.
package enrollment

import (
	"context"
	"fmt"
	"sort"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/credential"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/student"
)

var (
	ErrStudentIDRequired = errors.New("student id required")
	ErrUnknownDocument   = errors.New("unknown document kind")
	ErrEmptyDocument     = errors.New("document is empty")
)

// Submission is one press of the form's submit button.
type Submission struct {
	Mode          Mode                              `json:"mode" yaml:"mode"`
	StudentID     string                            `json:"student_id,omitempty" yaml:"student_id,omitempty"`
	Draft         student.Draft                     `json:"student" yaml:"student"`
	Passwords     credential.PasswordPolicy         `json:"passwords" yaml:"passwords"`
	ParentAccount student.ParentRole                `json:"parent_account,omitempty" yaml:"parent_account,omitempty"`
	Notify        NotifyFlags                       `json:"notify" yaml:"notify"`
	Documents     map[student.DocumentKind]Document `json:"documents,omitempty" yaml:"-"`
	Fee           *fee.Draft                        `json:"fee,omitempty" yaml:"fee,omitempty"`
}

type Option func(*Orchestrator)

// WithValidator sets the validator used for the form rules. The translator must be registered on it.
func WithValidator(validate *validator.Validate, translator ut.Translator) Option {
	return func(o *Orchestrator) {
		o.validate = validate
		o.translator = translator
	}
}

func WithFeeOptions(opts fee.Options) Option {
	return func(o *Orchestrator) { o.feeOpts = opts }
}

func WithStrictPasswords(strict bool) Option {
	return func(o *Orchestrator) { o.strictPasswords = strict }
}

// WithParentPasswordReuse turns on the school-wide "blank parent password reuses the student's" fallback.
func WithParentPasswordReuse(reuse bool) Option {
	return func(o *Orchestrator) { o.reuseParentPassword = reuse }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs submissions for one operator session. It keeps no state between runs.
type Orchestrator struct {
	api    API
	sess   core.Session
	logger core.Logger

	validate            *validator.Validate
	translator          ut.Translator
	feeOpts             fee.Options
	strictPasswords     bool
	reuseParentPassword bool
	recorder            Recorder
	notifier            Notifier
	now                 func() time.Time
}

func NewOrchestrator(api API, sess core.Session, logger core.Logger, opts ...Option) (*Orchestrator, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(api, "api"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		api:    api,
		sess:   sess,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.validate == nil {
		o.validate = validator.New()
		o.translator = core.NewTranslator()
		core.InitValidators(o.validate, o.translator)
		student.InitValidators(o.validate, o.translator)
	}
	return o, nil
}

// run is the bookkeeping of a single workflow run.
type run struct {
	out Outcome
}

func (r *run) to(s State) {
	if !canTransition(r.out.State, s) {
		panic(fmt.Sprintf("enrollment: illegal transition %s -> %s", r.out.State, s))
	}
	r.out.State = s
	r.out.Trace = append(r.out.Trace, s)
}

func (r *run) warn(step string, err error) {
	r.out.Warnings = append(r.out.Warnings, Warning{Step: step, Message: errMessage(err)})
}

// Run drives a submission to a terminal state.
// Upload, fee, roll lookup, account lookup and hook failures end up as Warnings; the returned error
// is always an *Error.
func (o *Orchestrator) Run(ctx context.Context, sub Submission) (Outcome, error) {
	r := &run{out: Outcome{State: StateIdle, Trace: []State{StateIdle}}}

	r.to(StateValidating)
	sub.Draft.Clean()
	if sub.Mode == "" {
		sub.Mode = ModeCreate
	}
	if sub.Mode == ModeCreate {
		if mode, ok := credential.ParseMode(string(sub.Passwords.Mode)); ok {
			sub.Passwords.Mode = mode
		}
		// no portal accounts, so no parent account holder
		if sub.Passwords.Mode == credential.ModeNone {
			sub.ParentAccount = student.ParentNone
		}
	}
	if o.reuseParentPassword {
		sub.Passwords.ReuseForParent = true
	}
	if err := o.validateSubmission(sub); err != nil {
		r.to(StateRejected)
		return r.out, validationFailed(err)
	}

	var err error
	if sub.Mode == ModeEdit {
		err = o.update(ctx, r, sub)
	} else {
		err = o.create(ctx, r, sub)
	}
	if err != nil {
		return r.out, err
	}

	o.afterSuccess(ctx, r)
	return r.out, nil
}

func (o *Orchestrator) validateSubmission(sub Submission) error {
	if sub.Mode == ModeEdit && core.CleanString(sub.StudentID) == "" {
		return core.NewValidationError(ErrStudentIDRequired, core.FieldError{Field: "student_id", Error: ErrStudentIDRequired.Error()})
	}

	if err := student.Validate(o.validate, o.translator, student.Check{
		Draft:           sub.Draft,
		Passwords:       sub.Passwords,
		ParentAccount:   sub.ParentAccount,
		NewEnrollment:   sub.Mode == ModeCreate,
		StrictPasswords: o.strictPasswords,
	}); err != nil {
		return err
	}

	for _, kind := range documentKinds(sub.Documents) {
		field := "documents." + string(kind)
		if !kind.Valid() {
			return core.NewValidationError(ErrUnknownDocument, core.FieldError{Field: field, Error: ErrUnknownDocument.Error()})
		}
		if len(sub.Documents[kind].Content) == 0 {
			return core.NewValidationError(ErrEmptyDocument, core.FieldError{Field: field, Error: ErrEmptyDocument.Error()})
		}
	}

	if sub.Mode == ModeCreate && sub.Fee != nil {
		if _, err := sub.Fee.Quote(o.now(), o.feeOpts); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) create(ctx context.Context, r *run, sub Submission) error {
	r.to(StateSubmitting)

	o.applyRoll(ctx, r, &sub.Draft)
	r.out.Notices = o.checkAccounts(ctx, r, sub.Draft, sub.ParentAccount)

	res, err := o.api.CreateStudentWithCredentials(ctx, CreateRequest{
		SchoolID:      o.sess.SchoolID,
		Student:       sub.Draft,
		Passwords:     sub.Passwords.Payload(),
		ParentAccount: sub.ParentAccount,
		Notify:        sub.Notify,
	})
	if err != nil {
		r.to(StateFailed)
		o.logger.Error("student creation failed", err, o.sess)
		return requestFailed(CreateFailed, err)
	}
	r.out.Student = res.Student
	r.out.Credentials = res.CredentialsCreated

	r.to(StateDocumentsUploading)
	o.upload(ctx, r, res.Student.ID, sub.Documents)

	if sub.Fee != nil {
		r.to(StateFeeCreating)
		o.createFee(ctx, r, res.Student.ID, *sub.Fee)
	}

	if credential.AnySecret(r.out.Credentials) {
		r.to(StateCredentialsReady)
	} else {
		r.to(StateDone)
	}
	return nil
}

func (o *Orchestrator) update(ctx context.Context, r *run, sub Submission) error {
	r.to(StateUpdating)

	id := core.CleanString(sub.StudentID)
	if err := o.api.PartialUpdateStudent(ctx, id, sub.Draft.Patch()); err != nil {
		r.to(StateFailed)
		o.logger.Error("student update failed", err, o.sess)
		return requestFailed(UpdateFailed, err)
	}
	if sub.Draft.IsActive != nil {
		if err := o.api.UpdateStudentStatus(ctx, id, *sub.Draft.IsActive); err != nil {
			r.to(StateFailed)
			o.logger.Error("student status update failed", err, o.sess)
			return requestFailed(UpdateFailed, err)
		}
	}
	r.out.Student = o.updatedStudent(ctx, r, id, sub.Draft)

	if len(sub.Documents) > 0 {
		r.to(StateDocumentsUploading)
		o.upload(ctx, r, id, sub.Documents)
	}
	r.to(StateDone)
	return nil
}

// updatedStudent reads the record back when the API can, and otherwise echoes the draft.
func (o *Orchestrator) updatedStudent(ctx context.Context, r *run, id string, d student.Draft) student.Student {
	if reader, ok := o.api.(StudentReader); ok {
		s, err := reader.GetStudent(ctx, id)
		if err == nil {
			s.Draft = nil
			return s
		}
		r.warn("reload", err)
		o.logger.Warn("student reload failed", err, map[string]interface{}{"student_id": id})
	}

	s := student.Student{
		ID:              id,
		AdmissionNumber: d.AdmissionNumber,
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Email:           d.Email,
		ClassID:         d.ClassID,
		SectionID:       d.SectionID,
		RollNumber:      d.RollNumber,
	}
	if d.IsActive != nil {
		s.IsActive = *d.IsActive
	}
	return s
}

// upload sends every document concurrently and waits for all of them.
func (o *Orchestrator) upload(ctx context.Context, r *run, studentID string, docs map[student.DocumentKind]Document) {
	kinds := documentKinds(docs)
	errs := make([]error, len(kinds))

	var g errgroup.Group
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			errs[i] = o.api.UploadDocument(ctx, studentID, kind, docs[kind])
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		r.warn("upload:"+string(kinds[i]), err)
		o.logger.Warn("document upload failed", err, map[string]interface{}{
			"student_id": studentID,
			"kind":       kinds[i],
		})
	}
}

func (o *Orchestrator) createFee(ctx context.Context, r *run, studentID string, d fee.Draft) {
	payload, err := d.Payload(studentID, o.sess.SchoolID, o.now(), o.feeOpts)
	if err == nil {
		err = o.api.CreateAdmissionFee(ctx, payload)
	}
	if err != nil {
		r.warn("fee", err)
		o.logger.Warn("admission fee creation failed", err, map[string]interface{}{"student_id": studentID})
	}
}

// applyRoll fills an empty roll number from the class sequence, when the API has one.
func (o *Orchestrator) applyRoll(ctx context.Context, r *run, d *student.Draft) {
	seqr, ok := o.api.(RollSequencer)
	if !ok || d.RollNumber != "" || d.ClassID == "" {
		return
	}
	seq, err := seqr.ClassSequence(ctx, d.ClassID)
	if err != nil {
		r.warn("roll", err)
		o.logger.Warn("roll sequence lookup failed", err, map[string]interface{}{"class_id": d.ClassID})
		return
	}
	d.ApplyRoll(seq)
}

func (o *Orchestrator) checkAccounts(ctx context.Context, r *run, d student.Draft, role student.ParentRole) []Notice {
	notices, err := o.CheckExistingAccounts(ctx, d, role)
	if err != nil {
		r.warn("lookup", err)
		o.logger.Warn("account lookup failed", err)
	}
	return notices
}

// CheckExistingAccounts reports the student and parent e-mails that already belong to a portal account.
func (o *Orchestrator) CheckExistingAccounts(ctx context.Context, d student.Draft, role student.ParentRole) ([]Notice, error) {
	type candidate struct{ field, email string }
	candidates := []candidate{{"email", core.CleanString(d.Email, true)}}
	if role != student.ParentNone {
		candidates = append(candidates, candidate{string(role) + ".email", core.CleanString(d.ParentEmail(role), true)})
	}

	var notices []Notice
	for _, c := range candidates {
		if c.email == "" {
			continue
		}
		acct, err := o.api.LookupUserByEmail(ctx, c.email)
		if err != nil {
			return notices, errors.Wrapf(err, "looking up %s", c.field)
		}
		if acct == nil {
			continue
		}
		msg := fmt.Sprintf("%s already belongs to a portal account", c.email)
		if acct.Name != "" {
			msg = fmt.Sprintf("%s already belongs to %s", c.email, acct.Name)
		}
		notices = append(notices, Notice{Field: c.field, Message: msg})
	}
	return notices, nil
}

// afterSuccess runs the journal and notification hooks. They only ever see redacted credentials.
func (o *Orchestrator) afterSuccess(ctx context.Context, r *run) {
	safe := r.out
	safe.Credentials = credential.Redacted(r.out.Credentials)

	if o.recorder != nil {
		if err := o.recorder.RecordEnrollment(ctx, o.sess, safe); err != nil {
			r.warn("audit", err)
			o.logger.Warn("audit record failed", err, o.sess)
		}
	}
	if o.notifier != nil {
		if err := o.notifier.EnrollmentCompleted(ctx, o.sess, safe); err != nil {
			r.warn("notify", err)
			o.logger.Warn("enrollment summary failed", err, o.sess)
		}
	}
}

// documentKinds returns the submitted kinds, known kinds first in their canonical order.
func documentKinds(docs map[student.DocumentKind]Document) []student.DocumentKind {
	kinds := make([]student.DocumentKind, 0, len(docs))
	for _, k := range student.DocumentKinds {
		if _, ok := docs[k]; ok {
			kinds = append(kinds, k)
		}
	}
	var unknown []student.DocumentKind
	for k := range docs {
		if !k.Valid() {
			unknown = append(unknown, k)
		}
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	return append(kinds, unknown...)
}

func errMessage(err error) string {
	var reqErr *core.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}
	return err.Error()
}
