package enrollment

import (
	"context"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/credential"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/student"
)

type (
	// API is the part of the school API the enrollment workflow drives.
	API interface {
		CreateStudentWithCredentials(ctx context.Context, req CreateRequest) (CreateResult, error)
		PartialUpdateStudent(ctx context.Context, id string, patch student.Patch) error
		UpdateStudentStatus(ctx context.Context, id string, isActive bool) error
		UploadDocument(ctx context.Context, studentID string, kind student.DocumentKind, doc Document) error
		CreateAdmissionFee(ctx context.Context, payload fee.Payload) error
		LookupUserByEmail(ctx context.Context, email string) (*Account, error)
	}

	// RollSequencer is implemented by APIs that expose class roll sequences.
	RollSequencer interface {
		ClassSequence(ctx context.Context, classID string) (student.ClassSequence, error)
	}

	// StudentReader is implemented by APIs that return a single student record.
	StudentReader interface {
		GetStudent(ctx context.Context, id string) (student.Student, error)
	}

	// Recorder journals completed workflows. It never sees passwords.
	Recorder interface {
		RecordEnrollment(ctx context.Context, sess core.Session, out Outcome) error
	}

	// Notifier is told about completed workflows.
	Notifier interface {
		EnrollmentCompleted(ctx context.Context, sess core.Session, out Outcome) error
	}
)

// NotifyFlags ask the server to mail the new logins.
type NotifyFlags struct {
	Student bool `json:"student" yaml:"student"`
	Parents bool `json:"parents" yaml:"parents"`
}

// CreateRequest is the body of the create-with-credentials call.
type CreateRequest struct {
	SchoolID      string             `json:"school_id,omitempty"`
	Student       student.Draft      `json:"student"`
	Passwords     credential.Payload `json:"passwords"`
	ParentAccount student.ParentRole `json:"parent_account,omitempty"`
	Notify        NotifyFlags        `json:"notify"`
}

// CreateResult is what the create-with-credentials call returns.
type CreateResult struct {
	Student            student.Student     `json:"student"`
	CredentialsCreated []credential.Issued `json:"credentials_created"`
}

// Document is an attached file.
type Document struct {
	Filename    string `json:"filename" yaml:"filename"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Content     []byte `json:"content" yaml:"-"`
}

// Account is an existing portal user.
type Account struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}
