// Package leave holds the pending leave requests of students and teachers and their approval workflow.
package leave

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidKey = errors.New("invalid leave key")

// Kind tells student leaves from teacher leaves.
type Kind string

const (
	KindStudent Kind = "student"
	KindTeacher Kind = "teacher"
)

func (k Kind) Valid() bool {
	return k == KindStudent || k == KindTeacher
}

// Path is the kind's segment in the school API routes.
func (k Kind) Path() string {
	return string(k) + "s"
}

// ParseKind accepts both the singular and the plural ("students") form.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	return k, k.Valid()
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Details are the fields every leave request has.
type Details struct {
	ID          string    `json:"id,omitempty"`
	Type        string    `json:"type"`
	Reason      string    `json:"reason"`
	StartDate   string    `json:"start_date"` // YYYY-MM-DD
	EndDate     string    `json:"end_date"`   // YYYY-MM-DD
	Status      Status    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Request is a pending leave request: a StudentLeave or a TeacherLeave.
type Request interface {
	Kind() Kind
	Key() Key
	Leave() Details
	Subject() (id, name string)

	sealed()
}

type StudentLeave struct {
	Details
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	ClassID     string `json:"class_id,omitempty"`
}

func (l StudentLeave) Kind() Kind                 { return KindStudent }
func (l StudentLeave) Key() Key                   { return newKey(KindStudent, l.ID, l.StudentID, l.StartDate, l.EndDate) }
func (l StudentLeave) Leave() Details             { return l.Details }
func (l StudentLeave) Subject() (id, name string) { return l.StudentID, l.StudentName }
func (StudentLeave) sealed()                      {}

type TeacherLeave struct {
	Details
	TeacherID   string `json:"teacher_id"`
	TeacherName string `json:"teacher_name"`
}

func (l TeacherLeave) Kind() Kind                 { return KindTeacher }
func (l TeacherLeave) Key() Key                   { return newKey(KindTeacher, l.ID, l.TeacherID, l.StartDate, l.EndDate) }
func (l TeacherLeave) Leave() Details             { return l.Details }
func (l TeacherLeave) Subject() (id, name string) { return l.TeacherID, l.TeacherName }
func (TeacherLeave) sealed()                      {}

// Key identifies a leave request. It is the request id when the API gave one,
// else the composite of the subject (teacher or student) and the date range.
type Key struct {
	Kind      Kind
	ID        string
	SubjectID string
	StartDate string
	EndDate   string
}

func newKey(kind Kind, id, subjectID, start, end string) Key {
	if id = strings.TrimSpace(id); id != "" {
		return Key{Kind: kind, ID: id}
	}
	return Key{Kind: kind, SubjectID: subjectID, StartDate: start, EndDate: end}
}

// HasID reports whether the request can be acted upon on the school API.
func (k Key) HasID() bool { return k.ID != "" }

// String renders "kind:id" or "kind:subject:start:end".
func (k Key) String() string {
	if k.HasID() {
		return fmt.Sprintf("%s:%s", k.Kind, k.ID)
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Kind, k.SubjectID, k.StartDate, k.EndDate)
}

func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	kind, ok := ParseKind(parts[0])
	if !ok {
		return Key{}, errors.Wrapf(ErrInvalidKey, "%q", s)
	}
	switch {
	case len(parts) == 2 && parts[1] != "":
		return Key{Kind: kind, ID: parts[1]}, nil
	case len(parts) == 4 && parts[1] != "":
		return Key{Kind: kind, SubjectID: parts[1], StartDate: parts[2], EndDate: parts[3]}, nil
	}
	return Key{}, errors.Wrapf(ErrInvalidKey, "%q", s)
}

// View is the JSON shape of a request, flattened for listing.
type View struct {
	Key         string    `json:"key"`
	Kind        Kind      `json:"kind"`
	ID          string    `json:"id,omitempty"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	Type        string    `json:"type"`
	Reason      string    `json:"reason"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	SubmittedAt time.Time `json:"submitted_at"`
	Actionable  bool      `json:"actionable"`
}

func NewView(r Request) View {
	d := r.Leave()
	key := r.Key()
	subjectID, subjectName := r.Subject()
	return View{
		Key:         key.String(),
		Kind:        r.Kind(),
		ID:          key.ID,
		SubjectID:   subjectID,
		SubjectName: subjectName,
		Type:        d.Type,
		Reason:      d.Reason,
		StartDate:   d.StartDate,
		EndDate:     d.EndDate,
		SubmittedAt: d.SubmittedAt,
		Actionable:  key.HasID(),
	}
}
