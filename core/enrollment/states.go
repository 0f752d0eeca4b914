package enrollment

import (
	"github.com/trezcool/registrar/core/credential"
	"github.com/trezcool/registrar/core/student"
)

// State of the enrollment workflow.
type State string

const (
	StateIdle               State = "idle"
	StateValidating         State = "validating"
	StateRejected           State = "rejected"
	StateSubmitting         State = "submitting"
	StateUpdating           State = "updating"
	StateDocumentsUploading State = "documents_uploading"
	StateFeeCreating        State = "fee_creating"
	StateCredentialsReady   State = "credentials_ready"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// Terminal reports whether no transition leaves the state.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateFailed, StateCredentialsReady, StateDone:
		return true
	}
	return false
}

// transitions is the workflow graph; anything else is a programming error.
var transitions = map[State][]State{
	StateIdle:               {StateValidating},
	StateValidating:         {StateRejected, StateSubmitting, StateUpdating},
	StateSubmitting:         {StateFailed, StateDocumentsUploading},
	StateUpdating:           {StateFailed, StateDocumentsUploading, StateDone},
	StateDocumentsUploading: {StateFeeCreating, StateCredentialsReady, StateDone},
	StateFeeCreating:        {StateCredentialsReady, StateDone},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Mode of a submission.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Warning is a failed best-effort step. It never fails the workflow.
type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// Notice is information for the operator, eg. an email that already has an account.
type Notice struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Outcome is the result of a workflow run.
type Outcome struct {
	State       State               `json:"state"`
	Trace       []State             `json:"trace"`
	Student     student.Student     `json:"student"`
	Credentials []credential.Issued `json:"credentials"`
	Warnings    []Warning           `json:"warnings"`
	Notices     []Notice            `json:"notices,omitempty"`
}

// ShowCredentials reports whether the UI should open the one-time credential view.
func (o Outcome) ShowCredentials() bool {
	return o.State == StateCredentialsReady
}
