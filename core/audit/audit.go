// Package audit journals what operators did: enrollments, updates and leave decisions.
// Entries never hold passwords.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/leave"
)

// Actions
const (
	ActionEnrolled      = "student.enrolled"
	ActionUpdated       = "student.updated"
	ActionLeaveApproved = "leave.approved"
	ActionLeaveRejected = "leave.rejected"
)

const DefaultLimit = 50

type (
	Entry struct {
		ID        string    `json:"id" db:"id"`
		Action    string    `json:"action" db:"action"`
		SubjectID string    `json:"subject_id" db:"subject_id"`
		SchoolID  string    `json:"school_id,omitempty" db:"school_id"`
		ActorID   string    `json:"actor_id,omitempty" db:"actor_id"`
		Detail    string    `json:"detail,omitempty" db:"detail"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
	}

	// Filter applies AND operation on its non-empty fields.
	Filter struct {
		Action    string    `query:"action"`
		SubjectID string    `query:"subject_id"`
		SchoolID  string    `query:"school_id"`
		Since     time.Time `query:"since"`
		Limit     int       `query:"limit"`
	}

	Repository interface {
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		// FilterEntries returns the newest entries first.
		FilterEntries(ctx context.Context, f Filter) ([]Entry, error)
	}

	// Service records enrollments and leave decisions. Its recording failures never fail the caller's workflow.
	Service struct {
		repo   Repository
		logger core.Logger
		now    func() time.Time
	}
)

var (
	_ enrollment.Recorder = (*Service)(nil)
	_ leave.Recorder      = (*Service)(nil)
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (svc *Service) record(ctx context.Context, sess core.Session, e Entry) error {
	e.ID = uuid.New().String()
	e.ActorID = sess.UserID
	if e.SchoolID == "" {
		e.SchoolID = sess.SchoolID
	}
	e.CreatedAt = svc.now().UTC()
	if _, err := svc.repo.CreateEntry(ctx, e); err != nil {
		svc.logger.Error("recording audit entry", err, map[string]interface{}{"action": e.Action, "subject_id": e.SubjectID})
		return err
	}
	return nil
}

// RecordEnrollment journals a successful create or edit.
func (svc *Service) RecordEnrollment(ctx context.Context, sess core.Session, out enrollment.Outcome) error {
	action := ActionEnrolled
	if containsState(out.Trace, enrollment.StateUpdating) {
		action = ActionUpdated
	}

	var detail []string
	if name := out.Student.FullName(); name != "" {
		detail = append(detail, name)
	}
	for _, c := range out.Credentials {
		detail = append(detail, fmt.Sprintf("account %s <%s>", c.Role, c.Email))
	}
	for _, w := range out.Warnings {
		detail = append(detail, fmt.Sprintf("warning %s: %s", w.Step, w.Message))
	}

	return svc.record(ctx, sess, Entry{
		Action:    action,
		SubjectID: out.Student.ID,
		Detail:    strings.Join(detail, "; "),
	})
}

// RecordLeaveDecision journals an approved or rejected leave.
func (svc *Service) RecordLeaveDecision(ctx context.Context, sess core.Session, d leave.Decision) error {
	action := ActionLeaveApproved
	if d.Status == leave.StatusRejected {
		action = ActionLeaveRejected
	}
	return svc.record(ctx, sess, Entry{
		Action:    action,
		SubjectID: d.Key.String(),
		Detail:    d.Comment,
	})
}

// Query lists entries of the session's school.
func (svc *Service) Query(ctx context.Context, sess core.Session, f Filter) ([]Entry, error) {
	f.SchoolID = sess.SchoolID
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = DefaultLimit
	}
	return svc.repo.FilterEntries(ctx, f)
}

func containsState(trace []enrollment.State, s enrollment.State) bool {
	for _, t := range trace {
		if t == s {
			return true
		}
	}
	return false
}
